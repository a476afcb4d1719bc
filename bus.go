package tiller

import (
	"log/slog"
	"sync"
	"time"
)

// EventBus is an ordered, multi-consumer broadcast of run events.
//
// Emit never blocks: each consumer has an unbounded queue drained by its
// own pump goroutine, so a slow consumer cannot stall the run. Hooks run
// synchronously inside Emit (panics swallowed), which guarantees hook
// callbacks observe an event before any queued iteration delivery of it.
// Events emitted after Close are dropped; consumers drain their queues and
// then their channels close.
type EventBus struct {
	mu     sync.Mutex
	subs   []*busSub
	hooks  []func(Event)
	closed bool
	reason error
	lastAt time.Time
	logger *slog.Logger
}

type busSub struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
}

// NewEventBus creates an empty bus. A nil logger falls back to a no-op.
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = nopLogger
	}
	return &EventBus{logger: logger}
}

// Subscribe registers a best-effort hook invoked synchronously for every
// emitted event. Hook panics are swallowed so a misbehaving hook cannot
// destabilise the run.
func (b *EventBus) Subscribe(hook func(Event)) {
	if hook == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, hook)
}

// Events returns a channel delivering every event emitted after this call,
// in emission order. The channel closes once the bus is closed and the
// consumer's queue is drained.
func (b *EventBus) Events() <-chan Event {
	s := &busSub{}
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	s.closed = b.closed
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	ch := make(chan Event)
	go s.pump(ch)
	return ch
}

// Emit broadcasts ev to all consumers. Timestamps are stamped here and are
// monotonic within the bus. Emits after Close are dropped.
func (b *EventBus) Emit(ev Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if !ev.At.After(b.lastAt) {
		ev.At = b.lastAt.Add(time.Nanosecond)
	}
	b.lastAt = ev.At

	hooks := b.hooks
	subs := b.subs
	b.mu.Unlock()

	for _, h := range hooks {
		b.callHook(h, ev)
	}
	for _, s := range subs {
		s.push(ev)
	}
}

func (b *EventBus) callHook(h func(Event), ev Event) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Warn("event hook panic", "type", ev.Type, "panic", p)
		}
	}()
	h(ev)
}

// Close seals the bus with an optional terminal reason. Idempotent.
// Consumers finish draining buffered events, then their channels close.
func (b *EventBus) Close(reason error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.reason = reason
	subs := b.subs
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// Reason returns the terminal cause recorded at Close, if any.
func (b *EventBus) Reason() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

// Closed reports whether the bus has been sealed.
func (b *EventBus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (s *busSub) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *busSub) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Signal()
}

// pump delivers queued events to ch in order, then closes ch once the sub
// is closed and drained.
func (s *busSub) pump(ch chan<- Event) {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		batch := s.queue
		s.queue = nil
		closed := s.closed
		s.mu.Unlock()

		for _, ev := range batch {
			ch <- ev
		}
		if closed {
			s.mu.Lock()
			drained := len(s.queue) == 0
			s.mu.Unlock()
			if drained {
				close(ch)
				return
			}
		}
	}
}

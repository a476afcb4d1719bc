package tiller

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// breakerStateKey is the config key the breaker snapshot persists under.
const breakerStateKey = "routing:circuitBreaker:v1"

// ConfigStore is a durable key→JSON store for supervisor state that must
// survive the process, currently the circuit breaker snapshot.
// Implementations: store/sqlite and store/postgres.
type ConfigStore interface {
	// GetConfig returns the value stored under key, or (nil, nil) when the
	// key has never been written.
	GetConfig(ctx context.Context, key string) (json.RawMessage, error)
	// SetConfig stores value under key, replacing any previous value.
	SetConfig(ctx context.Context, key string, value json.RawMessage) error
}

// loadBreakerState restores the breaker from the store. Missing, malformed,
// or wrong-version snapshots leave the breaker empty; the supervisor treats
// persisted state as best-effort.
func loadBreakerState(ctx context.Context, store ConfigStore, breaker *CircuitBreaker, logger *slog.Logger) {
	raw, err := store.GetConfig(ctx, breakerStateKey)
	if err != nil {
		logger.Warn("breaker state load failed", "error", err)
		return
	}
	if len(raw) == 0 {
		return
	}
	var snap BreakerSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		logger.Warn("breaker state unreadable", "error", err)
		return
	}
	breaker.Restore(snap)
}

// breakerPersister serializes breaker snapshot writes. Overlapping runs
// share one persister, so snapshots never interleave; writes are coalesced
// when they pile up (only the latest snapshot matters).
type breakerPersister struct {
	store   ConfigStore
	breaker *CircuitBreaker
	logger  *slog.Logger

	mu      sync.Mutex
	pending bool
	running bool
}

func newBreakerPersister(store ConfigStore, breaker *CircuitBreaker, logger *slog.Logger) *breakerPersister {
	return &breakerPersister{store: store, breaker: breaker, logger: logger}
}

// Persist schedules a snapshot write. Returns immediately; the write runs on
// a dedicated goroutine that drains queued requests one at a time.
func (p *breakerPersister) Persist() {
	if p == nil || p.store == nil {
		return
	}
	p.mu.Lock()
	p.pending = true
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.drain()
}

func (p *breakerPersister) drain() {
	for {
		p.mu.Lock()
		if !p.pending {
			p.running = false
			p.mu.Unlock()
			return
		}
		p.pending = false
		p.mu.Unlock()

		snap := p.breaker.Snapshot()
		raw, err := json.Marshal(snap)
		if err != nil {
			p.logger.Warn("breaker snapshot marshal failed", "error", err)
			continue
		}
		if err := p.store.SetConfig(context.Background(), breakerStateKey, raw); err != nil {
			p.logger.Warn("breaker state persist failed", "error", err)
		}
	}
}

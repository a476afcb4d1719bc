package tiller

import (
	"sync"
	"time"
)

// Breaker tuning defaults.
const (
	DefaultFailureThreshold   = 2
	DefaultBaseCooldown       = 5 * time.Minute
	DefaultMaxCooldown        = 60 * time.Minute
	DefaultPenaltyPerFailure  = 1000
	DefaultOpenCircuitPenalty = 1_000_000
)

// breakerSnapshotVersion is the only snapshot version Restore accepts.
const breakerSnapshotVersion = 1

// BreakerConfig tunes a CircuitBreaker. Zero fields take the defaults.
type BreakerConfig struct {
	FailureThreshold   int
	BaseCooldown       time.Duration
	MaxCooldown        time.Duration
	PenaltyPerFailure  int
	OpenCircuitPenalty int
}

func (c *BreakerConfig) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.BaseCooldown <= 0 {
		c.BaseCooldown = DefaultBaseCooldown
	}
	if c.MaxCooldown <= 0 {
		c.MaxCooldown = DefaultMaxCooldown
	}
	if c.PenaltyPerFailure <= 0 {
		c.PenaltyPerFailure = DefaultPenaltyPerFailure
	}
	if c.OpenCircuitPenalty <= 0 {
		c.OpenCircuitPenalty = DefaultOpenCircuitPenalty
	}
}

// breakerEntry tracks consecutive failures for one candidate ref.
type breakerEntry struct {
	consecutiveFailures int
	lastFailureAt       time.Time
	openUntil           time.Time
}

// CircuitBreaker tracks per-candidate failure streaks and converts them into
// router penalties. A ref whose streak reaches the threshold opens for an
// exponentially growing cooldown window; while open it carries the full
// open-circuit penalty so the router places it after any healthy candidate.
//
// The breaker is shared across runs and safe for concurrent use.
type CircuitBreaker struct {
	mu      sync.Mutex
	cfg     BreakerConfig
	entries map[string]*breakerEntry
}

// NewCircuitBreaker builds a breaker with the given config (zero fields take
// the defaults).
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	cfg.applyDefaults()
	return &CircuitBreaker{cfg: cfg, entries: make(map[string]*breakerEntry)}
}

// RecordSuccess resets the ref's failure streak.
func (b *CircuitBreaker) RecordSuccess(ref string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, ref)
}

// RecordFailure increments the ref's streak. Reaching the threshold opens
// the circuit for baseCooldown·2^(count−threshold), capped at maxCooldown.
func (b *CircuitBreaker) RecordFailure(ref string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entries[ref]
	if e == nil {
		e = &breakerEntry{}
		b.entries[ref] = e
	}
	e.consecutiveFailures++
	e.lastFailureAt = now
	if e.consecutiveFailures >= b.cfg.FailureThreshold {
		cooldown := b.cfg.BaseCooldown << uint(e.consecutiveFailures-b.cfg.FailureThreshold)
		if cooldown > b.cfg.MaxCooldown || cooldown <= 0 {
			cooldown = b.cfg.MaxCooldown
		}
		e.openUntil = now.Add(cooldown)
	}
}

// IsOpen reports whether the ref's circuit is open at now.
func (b *CircuitBreaker) IsOpen(ref string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entries[ref]
	return e != nil && now.Before(e.openUntil)
}

// Penalty returns the router penalty for ref at now: the open-circuit
// penalty while open, otherwise failures·penaltyPerFailure.
func (b *CircuitBreaker) Penalty(ref string, now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entries[ref]
	if e == nil {
		return 0
	}
	if now.Before(e.openUntil) {
		return b.cfg.OpenCircuitPenalty
	}
	return e.consecutiveFailures * b.cfg.PenaltyPerFailure
}

// BreakerSnapshot is the durable form of the breaker state.
type BreakerSnapshot struct {
	Version int                             `json:"version"`
	Entries map[string]BreakerSnapshotEntry `json:"entries"`
}

// BreakerSnapshotEntry is one ref's persisted state. Times are Unix
// milliseconds; zero means unset.
type BreakerSnapshotEntry struct {
	ConsecutiveFailures int   `json:"consecutiveFailures"`
	LastFailureAt       int64 `json:"lastFailureAt,omitempty"`
	OpenUntil           int64 `json:"openUntil,omitempty"`
}

// Snapshot dumps the current entries for persistence.
func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := BreakerSnapshot{Version: breakerSnapshotVersion, Entries: make(map[string]BreakerSnapshotEntry, len(b.entries))}
	for ref, e := range b.entries {
		out := BreakerSnapshotEntry{ConsecutiveFailures: e.consecutiveFailures}
		if !e.lastFailureAt.IsZero() {
			out.LastFailureAt = e.lastFailureAt.UnixMilli()
		}
		if !e.openUntil.IsZero() {
			out.OpenUntil = e.openUntil.UnixMilli()
		}
		snap.Entries[ref] = out
	}
	return snap
}

// Restore replaces the breaker state from a snapshot. Snapshots of any other
// version are ignored wholesale.
func (b *CircuitBreaker) Restore(snap BreakerSnapshot) {
	if snap.Version != breakerSnapshotVersion {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]*breakerEntry, len(snap.Entries))
	for ref, in := range snap.Entries {
		e := &breakerEntry{consecutiveFailures: in.ConsecutiveFailures}
		if in.LastFailureAt != 0 {
			e.lastFailureAt = time.UnixMilli(in.LastFailureAt)
		}
		if in.OpenUntil != 0 {
			e.openUntil = time.UnixMilli(in.OpenUntil)
		}
		b.entries[ref] = e
	}
}

package tiller

import (
	"encoding/json"
	"time"
)

// Default capacities for the three pool caches.
const (
	DefaultKVEntries           = 1024
	DefaultEmbeddingEntries    = 4096
	DefaultFileSnapshotEntries = 1024
)

// FileSnapshot is a cached copy of a workspace file keyed by path.
type FileSnapshot struct {
	Hash  string `json:"hash"`
	Bytes []byte `json:"bytes"`
}

// MemoryPool holds three independent bounded TTL caches shared across runs:
// key→value, text embeddings, and file snapshots. Each cache is internally
// synchronized; there are no cross-cache invariants.
type MemoryPool struct {
	kv         *ttlCache[json.RawMessage]
	embeddings *ttlCache[[]float32]
	snapshots  *ttlCache[FileSnapshot]
}

// MemoryOption configures a MemoryPool.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	kvEntries       int
	embedEntries    int
	snapshotEntries int
	ttl             time.Duration
}

// WithKVEntries overrides the kv cache capacity.
func WithKVEntries(n int) MemoryOption {
	return func(c *memoryConfig) { c.kvEntries = n }
}

// WithEmbeddingEntries overrides the embeddings cache capacity.
func WithEmbeddingEntries(n int) MemoryOption {
	return func(c *memoryConfig) { c.embedEntries = n }
}

// WithFileSnapshotEntries overrides the file snapshot cache capacity.
func WithFileSnapshotEntries(n int) MemoryOption {
	return func(c *memoryConfig) { c.snapshotEntries = n }
}

// WithTTL sets the entry time-to-live for all three caches. Zero disables
// expiry (the default).
func WithTTL(d time.Duration) MemoryOption {
	return func(c *memoryConfig) { c.ttl = d }
}

// NewMemoryPool creates a pool with the default capacities unless
// overridden by options.
func NewMemoryPool(opts ...MemoryOption) *MemoryPool {
	cfg := memoryConfig{
		kvEntries:       DefaultKVEntries,
		embedEntries:    DefaultEmbeddingEntries,
		snapshotEntries: DefaultFileSnapshotEntries,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MemoryPool{
		kv:         newTTLCache[json.RawMessage](cfg.kvEntries, cfg.ttl),
		embeddings: newTTLCache[[]float32](cfg.embedEntries, cfg.ttl),
		snapshots:  newTTLCache[FileSnapshot](cfg.snapshotEntries, cfg.ttl),
	}
}

// Get returns the kv value stored under key.
func (p *MemoryPool) Get(key string) (json.RawMessage, bool) { return p.kv.Get(key) }

// Set stores a kv value under key.
func (p *MemoryPool) Set(key string, value json.RawMessage) { p.kv.Set(key, value) }

// Delete removes a kv entry.
func (p *MemoryPool) Delete(key string) bool { return p.kv.Delete(key) }

// GetEmbedding returns the cached embedding for key.
func (p *MemoryPool) GetEmbedding(key string) ([]float32, bool) { return p.embeddings.Get(key) }

// SetEmbedding caches an embedding vector under key.
func (p *MemoryPool) SetEmbedding(key string, vec []float32) { p.embeddings.Set(key, vec) }

// GetSnapshot returns the cached file snapshot for path.
func (p *MemoryPool) GetSnapshot(path string) (FileSnapshot, bool) { return p.snapshots.Get(path) }

// SetSnapshot caches a file snapshot under path.
func (p *MemoryPool) SetSnapshot(path string, snap FileSnapshot) { p.snapshots.Set(path, snap) }

// KVLen returns the live kv entry count.
func (p *MemoryPool) KVLen() int { return p.kv.Len() }

// Scope returns a view whose operations transparently prefix keys with
// "prefix:". Scopes share the underlying caches, so entries written through
// a scope count against the pool's capacities.
func (p *MemoryPool) Scope(prefix string) *MemoryScope {
	return &MemoryScope{pool: p, prefix: prefix + ":"}
}

// MemoryScope is a namespaced view over a MemoryPool.
type MemoryScope struct {
	pool   *MemoryPool
	prefix string
}

// Get returns the kv value stored under the scoped key.
func (s *MemoryScope) Get(key string) (json.RawMessage, bool) {
	return s.pool.Get(s.prefix + key)
}

// Set stores a kv value under the scoped key.
func (s *MemoryScope) Set(key string, value json.RawMessage) {
	s.pool.Set(s.prefix+key, value)
}

// Delete removes the scoped kv entry.
func (s *MemoryScope) Delete(key string) bool {
	return s.pool.Delete(s.prefix + key)
}

// GetEmbedding returns the cached embedding for the scoped key.
func (s *MemoryScope) GetEmbedding(key string) ([]float32, bool) {
	return s.pool.GetEmbedding(s.prefix + key)
}

// SetEmbedding caches an embedding under the scoped key.
func (s *MemoryScope) SetEmbedding(key string, vec []float32) {
	s.pool.SetEmbedding(s.prefix+key, vec)
}

// GetSnapshot returns the cached snapshot for the scoped path.
func (s *MemoryScope) GetSnapshot(path string) (FileSnapshot, bool) {
	return s.pool.GetSnapshot(s.prefix + path)
}

// SetSnapshot caches a snapshot under the scoped path.
func (s *MemoryScope) SetSnapshot(path string, snap FileSnapshot) {
	s.pool.SetSnapshot(s.prefix+path, snap)
}

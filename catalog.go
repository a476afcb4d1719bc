package tiller

import "sync"

// ModelClass groups models by intent rather than vendor naming.
type ModelClass string

const (
	ClassDefault     ModelClass = "default"
	ClassFrontier    ModelClass = "frontier"
	ClassFast        ModelClass = "fast"
	ClassLongContext ModelClass = "long_context"
	ClassCheap       ModelClass = "cheap"
)

// ModelCapabilities declares what a profile's backend supports. The zero
// value means unknown, which the router treats as permissive.
type ModelCapabilities struct {
	Streaming *bool `json:"streaming,omitempty"`
	Tools     *bool `json:"tools,omitempty"`
}

// ModelProfile describes one (provider, model) pair for routing. LatencyRank
// and CostRank are relative orderings within the catalog, lower is better.
type ModelProfile struct {
	Provider         string            `json:"provider"`
	Model            string            `json:"model"`
	Classes          []ModelClass      `json:"classes"`
	LatencyRank      int               `json:"latency_rank"`
	CostRank         int               `json:"cost_rank"`
	MaxContextTokens int               `json:"max_context_tokens,omitempty"`
	Capabilities     ModelCapabilities `json:"capabilities,omitempty"`
}

// Ref returns the candidate ref string "provider:model".
func (p *ModelProfile) Ref() string { return p.Provider + ":" + p.Model }

// HasClass reports whether the profile carries class. ClassDefault matches
// any profile with a non-empty class list.
func (p *ModelProfile) HasClass(class ModelClass) bool {
	if class == ClassDefault || class == "" {
		return len(p.Classes) > 0
	}
	for _, c := range p.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// ModelCatalog is an append-only registry of model profiles. It is safe for
// concurrent use; discovery goroutines may register profiles while runs
// query the catalog.
type ModelCatalog struct {
	mu       sync.RWMutex
	profiles []ModelProfile
}

// NewModelCatalog builds a catalog seeded with the given profiles.
func NewModelCatalog(profiles ...ModelProfile) *ModelCatalog {
	c := &ModelCatalog{}
	c.Register(profiles...)
	return c
}

// Register appends profiles. An existing (provider, model) pair is replaced
// in place so discovery can refresh rank data without duplicating entries.
func (c *ModelCatalog) Register(profiles ...ModelProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range profiles {
		replaced := false
		for i := range c.profiles {
			if c.profiles[i].Provider == p.Provider && c.profiles[i].Model == p.Model {
				c.profiles[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			c.profiles = append(c.profiles, p)
		}
	}
}

// All returns a copy of every registered profile in registration order.
func (c *ModelCatalog) All() []ModelProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ModelProfile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// ByClass returns the profiles carrying class, in registration order.
func (c *ModelCatalog) ByClass(class ModelClass) []ModelProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []ModelProfile
	for i := range c.profiles {
		if c.profiles[i].HasClass(class) {
			out = append(out, c.profiles[i])
		}
	}
	return out
}

// ByProvider returns the profiles registered for provider.
func (c *ModelCatalog) ByProvider(provider string) []ModelProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []ModelProfile
	for i := range c.profiles {
		if c.profiles[i].Provider == provider {
			out = append(out, c.profiles[i])
		}
	}
	return out
}

// Find returns the profile for (provider, model), or nil.
func (c *ModelCatalog) Find(provider, model string) *ModelProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.profiles {
		if c.profiles[i].Provider == provider && c.profiles[i].Model == model {
			p := c.profiles[i]
			return &p
		}
	}
	return nil
}

// Len returns the number of registered profiles.
func (c *ModelCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.profiles)
}

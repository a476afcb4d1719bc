package tiller

import "sort"

// RoutePreference expresses what the caller wants the router to favor.
type RoutePreference struct {
	// Provider pins an explicit provider. Combined with Model it names an
	// exact candidate; alone it moves the provider to the front.
	Provider string
	// Model pins an explicit model id across the ordered providers.
	Model string
	// Class selects catalog profiles by class when no explicit model is set.
	Class ModelClass
	// PreferredProviders are tried before the rest, in order.
	PreferredProviders []string
	// AllowFallback permits trying further candidates after the first.
	// When false the plan is truncated to a single candidate.
	AllowFallback bool
}

// RouteConstraints are hard filters applied after candidate generation.
type RouteConstraints struct {
	MustStream       bool
	RequiresTools    bool
	AllowedProviders []string
	BlockedProviders []string
	MinContextTokens int
}

// Candidate is one (provider, model) pair of a route plan. Profile is nil
// for explicit-model candidates absent from the catalog.
type Candidate struct {
	Provider string
	Model    string
	Profile  *ModelProfile
}

// Ref returns the candidate ref string "provider:model".
func (c Candidate) Ref() string { return c.Provider + ":" + c.Model }

// ScoreFunc scores a candidate; lower is better. The supervisor supplies
// latencyRank·10 + costRank + breakerPenalty.
type ScoreFunc func(c Candidate) int

// RoutePlan is the ordered candidate list a run will attempt.
type RoutePlan struct {
	Candidates []Candidate
}

// Refs returns the plan's candidate refs in order.
func (p RoutePlan) Refs() []string {
	refs := make([]string, len(p.Candidates))
	for i := range p.Candidates {
		refs[i] = p.Candidates[i].Ref()
	}
	return refs
}

// Router turns availability, preferences, and constraints into an ordered
// candidate plan. It is stateless; determinism follows from the catalog's
// registration order and the stable sorts.
type Router struct {
	catalog *ModelCatalog
}

// NewRouter builds a router over the catalog.
func NewRouter(catalog *ModelCatalog) *Router {
	return &Router{catalog: catalog}
}

// Plan produces the ordered candidate list.
//
// availability maps provider id to whether its backend is usable. score may
// be nil, in which case catalog order (latency-sorted within a provider)
// stands.
func (r *Router) Plan(availability map[string]bool, pref RoutePreference, cons RouteConstraints, score ScoreFunc) RoutePlan {
	providers := r.eligibleProviders(availability, cons)
	ordered := orderProviders(providers, pref)

	var candidates []Candidate
	if pref.Model != "" {
		for _, provider := range ordered {
			candidates = append(candidates, Candidate{
				Provider: provider,
				Model:    pref.Model,
				Profile:  r.catalog.Find(provider, pref.Model),
			})
		}
	} else {
		for _, provider := range ordered {
			candidates = append(candidates, r.classCandidates(provider, pref.Class)...)
		}
	}

	candidates = filterCandidates(candidates, cons)

	// Last resort: the whole catalog, filtered to available providers.
	if len(candidates) == 0 && pref.AllowFallback {
		inOrder := make(map[string]bool, len(ordered))
		for _, p := range ordered {
			inOrder[p] = true
		}
		for _, profile := range r.catalog.All() {
			if !inOrder[profile.Provider] {
				continue
			}
			p := profile
			candidates = append(candidates, Candidate{Provider: p.Provider, Model: p.Model, Profile: &p})
		}
		candidates = filterCandidates(candidates, cons)
	}

	if score != nil {
		sort.SliceStable(candidates, func(i, j int) bool {
			return score(candidates[i]) < score(candidates[j])
		})
	}

	if !pref.AllowFallback && len(candidates) > 1 {
		candidates = candidates[:1]
	}
	return RoutePlan{Candidates: candidates}
}

func (r *Router) eligibleProviders(availability map[string]bool, cons RouteConstraints) []string {
	allowed := map[string]bool{}
	if cons.AllowedProviders != nil {
		for _, p := range cons.AllowedProviders {
			allowed[p] = true
		}
	}
	blocked := map[string]bool{}
	for _, p := range cons.BlockedProviders {
		blocked[p] = true
	}

	// Iterate the catalog first so provider order is deterministic, then
	// sweep availability for providers the catalog has never seen.
	var out []string
	seen := map[string]bool{}
	consider := func(provider string) {
		if seen[provider] {
			return
		}
		seen[provider] = true
		if !availability[provider] || blocked[provider] {
			return
		}
		if cons.AllowedProviders != nil && !allowed[provider] {
			return
		}
		out = append(out, provider)
	}
	for _, p := range r.catalog.All() {
		consider(p.Provider)
	}
	extra := make([]string, 0, len(availability))
	for provider := range availability {
		if !seen[provider] {
			extra = append(extra, provider)
		}
	}
	sort.Strings(extra)
	for _, provider := range extra {
		consider(provider)
	}
	return out
}

// orderProviders moves the explicit preferred provider first, then the
// preferred list in order, then the rest in their given order.
func orderProviders(providers []string, pref RoutePreference) []string {
	rank := make(map[string]int, len(providers))
	const unranked = 1 << 30
	for _, p := range providers {
		rank[p] = unranked
	}
	next := 0
	if pref.Provider != "" {
		if _, ok := rank[pref.Provider]; ok {
			rank[pref.Provider] = next
			next++
		}
	}
	for _, p := range pref.PreferredProviders {
		if r, ok := rank[p]; ok && r == unranked {
			rank[p] = next
			next++
		}
	}
	out := make([]string, len(providers))
	copy(out, providers)
	sort.SliceStable(out, func(i, j int) bool { return rank[out[i]] < rank[out[j]] })
	return out
}

func (r *Router) classCandidates(provider string, class ModelClass) []Candidate {
	profiles := r.catalog.ByProvider(provider)
	var matched []ModelProfile
	for _, p := range profiles {
		if p.HasClass(class) {
			matched = append(matched, p)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].LatencyRank < matched[j].LatencyRank
	})
	out := make([]Candidate, len(matched))
	for i := range matched {
		p := matched[i]
		out[i] = Candidate{Provider: p.Provider, Model: p.Model, Profile: &p}
	}
	return out
}

// filterCandidates applies the hard capability and context-window filters.
// Candidates without a profile pass; an unknown capability passes.
func filterCandidates(candidates []Candidate, cons RouteConstraints) []Candidate {
	out := candidates[:0]
	for _, c := range candidates {
		if c.Profile != nil {
			caps := c.Profile.Capabilities
			if cons.MustStream && caps.Streaming != nil && !*caps.Streaming {
				continue
			}
			if cons.RequiresTools && caps.Tools != nil && !*caps.Tools {
				continue
			}
			if cons.MinContextTokens > 0 && c.Profile.MaxContextTokens > 0 &&
				c.Profile.MaxContextTokens < cons.MinContextTokens {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

package tiller

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// providerNameRE is the shape every provider-facing tool name must have.
var providerNameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

const maxToolNameBytes = 64

// NameMode selects how the supervisor treats tool names that are not
// provider-safe.
type NameMode string

const (
	// NameStrict refuses the run when any tool name is invalid or any two
	// provider-facing names collide.
	NameStrict NameMode = "strict"
	// NameSanitize rewrites names into the provider-safe alphabet and
	// disambiguates collisions with numeric suffixes.
	NameSanitize NameMode = "sanitize"
)

// NamePolicy validates or sanitizes tool names at the provider boundary.
type NamePolicy struct {
	Mode NameMode
}

// NameMapping records the original↔provider rename so egress events and the
// final result can be rewritten back to the caller's names.
type NameMapping struct {
	toProvider map[string]string
	toOriginal map[string]string
}

// Provider returns the provider-facing name for an original one
// (identity when unmapped).
func (m *NameMapping) Provider(original string) string {
	if m == nil {
		return original
	}
	if p, ok := m.toProvider[original]; ok {
		return p
	}
	return original
}

// Original returns the caller's name for a provider-facing one
// (identity when unmapped).
func (m *NameMapping) Original(provider string) string {
	if m == nil {
		return provider
	}
	if o, ok := m.toOriginal[provider]; ok {
		return o
	}
	return provider
}

// Changed reports whether any name was rewritten.
func (m *NameMapping) Changed() bool {
	if m == nil {
		return false
	}
	for o, p := range m.toProvider {
		if o != p {
			return true
		}
	}
	return false
}

// NameError reports the tools a strict policy refused, by index and
// original name.
type NameError struct {
	Indices []int
	Names   []string
	Reason  string
}

func (e *NameError) Error() string {
	parts := make([]string, len(e.Indices))
	for i := range e.Indices {
		parts[i] = fmt.Sprintf("#%d %q", e.Indices[i], e.Names[i])
	}
	return fmt.Sprintf("tool names rejected (%s): %s", e.Reason, strings.Join(parts, ", "))
}

// Apply rewrites the definitions' names per the policy and returns the new
// definitions plus the mapping. In strict mode invalid or colliding names
// make the whole set fail. The input slice is not modified.
func (p NamePolicy) Apply(defs []ToolDefinition) ([]ToolDefinition, *NameMapping, error) {
	mapping := &NameMapping{
		toProvider: make(map[string]string, len(defs)),
		toOriginal: make(map[string]string, len(defs)),
	}
	out := make([]ToolDefinition, len(defs))
	copy(out, defs)

	switch p.Mode {
	case NameSanitize:
		for i := range out {
			name := sanitizeToolName(out[i].Name)
			name = dedupeToolName(name, mapping.toOriginal)
			mapping.toProvider[out[i].Name] = name
			mapping.toOriginal[name] = out[i].Name
			out[i].Name = name
		}
		return out, mapping, nil

	default: // NameStrict
		var bad NameError
		seen := make(map[string]int, len(defs))
		for i := range out {
			name := out[i].Name
			if !providerNameRE.MatchString(name) {
				bad.Indices = append(bad.Indices, i)
				bad.Names = append(bad.Names, name)
				bad.Reason = "invalid name"
				continue
			}
			if first, dup := seen[name]; dup {
				bad.Indices = append(bad.Indices, first, i)
				bad.Names = append(bad.Names, name, name)
				bad.Reason = "name collision"
				continue
			}
			seen[name] = i
			mapping.toProvider[name] = name
			mapping.toOriginal[name] = name
		}
		if len(bad.Indices) > 0 {
			return nil, nil, &bad
		}
		return out, mapping, nil
	}
}

// sanitizeToolName rewrites a name into the provider-safe alphabet:
// NFKC normalization (folds fullwidth forms and ligatures), whitespace
// trim, illegal runes to '_', truncation to the 64-byte budget.
func sanitizeToolName(name string) string {
	name = norm.NFKC.String(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" {
		s = "_"
	}
	if len(s) > maxToolNameBytes {
		s = s[:maxToolNameBytes]
	}
	return s
}

// dedupeToolName appends _2, _3, … on collision, shortening the base so the
// suffixed name stays within the 64-byte budget.
func dedupeToolName(name string, taken map[string]string) string {
	if _, exists := taken[name]; !exists {
		return name
	}
	for n := 2; ; n++ {
		suffix := "_" + strconv.Itoa(n)
		base := name
		if len(base)+len(suffix) > maxToolNameBytes {
			base = base[:maxToolNameBytes-len(suffix)]
		}
		candidate := base + suffix
		if _, exists := taken[candidate]; !exists {
			return candidate
		}
	}
}

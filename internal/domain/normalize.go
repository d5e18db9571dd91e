package domain

import (
	"fmt"
	"sort"
)

// Normalizer rewrites known alias spellings of a join key to one canonical
// spelling. Matching is exact and case-sensitive; unknown keys pass through.
type Normalizer struct {
	aliases map[string]string
}

// NewNormalizer builds a Normalizer from an alias -> canonical table. A table
// in which a canonical value is itself an alias of something else is
// rejected, so Normalize is idempotent.
func NewNormalizer(table map[string]string) (Normalizer, error) {
	aliases := make(map[string]string, len(table))
	for alias, canonical := range table {
		if alias == "" || canonical == "" {
			return Normalizer{}, fmt.Errorf("%w: empty alias or canonical key in normalization table", ErrConfig)
		}
		aliases[alias] = canonical
	}
	for _, alias := range sortedKeys(aliases) {
		canonical := aliases[alias]
		if next, ok := aliases[canonical]; ok && next != canonical {
			return Normalizer{}, fmt.Errorf("%w: %q maps to %q, which is itself an alias of %q", ErrConfig, alias, canonical, next)
		}
	}
	return Normalizer{aliases: aliases}, nil
}

// MustNormalizer is NewNormalizer for static tables; it panics on an invalid table.
func MustNormalizer(table map[string]string) Normalizer {
	n, err := NewNormalizer(table)
	if err != nil {
		panic(err)
	}
	return n
}

// Normalize returns the canonical spelling of key.
func (n Normalizer) Normalize(key string) string {
	if canonical, ok := n.aliases[key]; ok {
		return canonical
	}
	return key
}

// Len reports the number of aliases in the table.
func (n Normalizer) Len() int { return len(n.aliases) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

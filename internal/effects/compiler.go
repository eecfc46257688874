package effects

import (
	"strings"

	"github.com/dvmax/mediaforge/internal/domain"
)

// Descriptor is the compiled, comma-joined instruction string for the
// remote transformation grammar, plus the effect IDs that survived
// compilation in selection order.
type Descriptor struct {
	Value   string
	Applied []string
}

// Compile composes a selection of effect identifiers into one descriptor.
// The selection is treated as a set: duplicates collapse to their first
// occurrence and fragment order follows selection order. Unrecognized
// identifiers are dropped silently; the call fails with NoValidEffects
// only when nothing survives.
//
// The media kind is not cross-checked against effect applicability; the
// delivery grammar accepts either kind for every fragment.
func (c *Catalog) Compile(kind string, effectIDs []string) (Descriptor, error) {
	_ = kind

	seen := make(map[string]struct{}, len(effectIDs))
	applied := make([]string, 0, len(effectIDs))
	fragments := make([]string, 0, len(effectIDs))

	for _, id := range effectIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		effect, ok := c.byID[id]
		if !ok {
			continue
		}
		applied = append(applied, id)
		fragments = append(fragments, effect.Fragment)
	}

	if len(fragments) == 0 {
		return Descriptor{}, domain.NewError(domain.CodeNoValidEffects, "no valid effects found")
	}

	return Descriptor{
		Value:   strings.Join(fragments, ","),
		Applied: applied,
	}, nil
}

package domain

// SearchResult represents a single similarity hit.
type SearchResult struct {
	// Chunk is the matched chunk, hydrated from the stored payload.
	Chunk Chunk

	// Score is the similarity score; higher is more relevant.
	Score float64
}

// RangeBound describes an inclusive numeric range predicate.
// A nil bound leaves that side open.
type RangeBound struct {
	GTE *float64
	LTE *float64
}

// Filter restricts the search candidate set before ranking.
// Match predicates are exact equality on metadata values; Range
// predicates apply to numeric metadata values.
type Filter struct {
	Match map[string]any
	Range map[string]RangeBound
}

// Empty reports whether the filter has no predicates.
func (f *Filter) Empty() bool {
	return f == nil || (len(f.Match) == 0 && len(f.Range) == 0)
}

// Preferences are caller-supplied re-rank hints. Results whose metadata
// matches are preferred between equal-score candidates; the primary
// similarity ordering is never altered.
type Preferences struct {
	// Prefer maps metadata keys to preferred values.
	Prefer map[string]any
}

// Matches reports whether a chunk's metadata satisfies every preference.
func (p *Preferences) Matches(md map[string]any) bool {
	if p == nil || len(p.Prefer) == 0 {
		return false
	}
	for k, want := range p.Prefer {
		got, ok := md[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

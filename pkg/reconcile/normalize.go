package reconcile

import "strings"

// BooksPrefix is the folder prefix historical uploads disagreed on.
const BooksPrefix = "books/"

// AlternativesOf returns the other keys a stored path may live under, most
// likely first. The original path is never included and duplicates are
// dropped.
//
// Stripping and adding the prefix are inverses of each other, so for any
// alternative a of p, AlternativesOf(a) contains p.
func AlternativesOf(p string) []string {
	canonical := strings.TrimPrefix(p, BooksPrefix)
	candidates := make([]string, 0, 4)
	if strings.HasPrefix(p, BooksPrefix) {
		candidates = append(candidates, canonical)
	} else {
		candidates = append(candidates, BooksPrefix+p)
	}
	candidates = append(candidates, canonical, BooksPrefix+canonical)
	if strings.HasPrefix(p, BooksPrefix) {
		// inverse of stripping one prefix from a doubly prefixed key
		candidates = append(candidates, BooksPrefix+p)
	}

	out := make([]string, 0, len(candidates))
	seen := map[string]struct{}{p: {}}
	for _, c := range candidates {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

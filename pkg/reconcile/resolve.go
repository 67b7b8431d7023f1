package reconcile

import (
	"strings"

	"bookportal/pkg/domain"
)

// Resolve reports whether recordedPath, or one of its alternatives, names an
// object in listing. It is a pure function of its inputs.
//
// Exact matches are tried first, for the recorded path and then each
// alternative. Failing that, an object whose terminal segment equals the
// candidate's terminal segment is accepted; ActualPath is then the object's
// real name, so it can always be used as a key.
func Resolve(recordedPath string, listing []domain.StorageObject) domain.Resolution {
	candidates := append([]string{recordedPath}, AlternativesOf(recordedPath)...)
	if res, ok := resolveExact(candidates, listing); ok {
		return res
	}
	for _, c := range candidates {
		tail := terminalSegment(c)
		if tail == "" {
			continue
		}
		for _, obj := range listing {
			if terminalSegment(obj.Name) == tail {
				return domain.Resolution{Exists: true, ActualPath: obj.Name}
			}
		}
	}
	return domain.Resolution{}
}

// ResolveStrict is Resolve without the terminal-segment fallback.
func ResolveStrict(recordedPath string, listing []domain.StorageObject) domain.Resolution {
	candidates := append([]string{recordedPath}, AlternativesOf(recordedPath)...)
	res, _ := resolveExact(candidates, listing)
	return res
}

func resolveExact(candidates []string, listing []domain.StorageObject) (domain.Resolution, bool) {
	names := make(map[string]struct{}, len(listing))
	for _, obj := range listing {
		names[obj.Name] = struct{}{}
	}
	for _, c := range candidates {
		if _, ok := names[c]; ok {
			return domain.Resolution{Exists: true, ActualPath: c}, true
		}
	}
	return domain.Resolution{}, false
}

func terminalSegment(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

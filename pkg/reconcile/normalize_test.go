package reconcile

import (
	"reflect"
	"slices"
	"testing"
)

func TestAlternativesOf(t *testing.T) {
	cases := []struct {
		path string
		want []string
	}{
		{path: "books/x.pdf", want: []string{"x.pdf", "books/books/x.pdf"}},
		{path: "x.pdf", want: []string{"books/x.pdf"}},
		{path: "books/books/x.pdf", want: []string{"books/x.pdf", "books/books/books/x.pdf"}},
		{path: "subject/x.pdf", want: []string{"books/subject/x.pdf"}},
		{path: "", want: []string{"books/"}},
	}
	for _, tc := range cases {
		got := AlternativesOf(tc.path)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("AlternativesOf(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestAlternativesOfExcludesOriginalAndStaysSmall(t *testing.T) {
	for _, p := range samplePaths() {
		alts := AlternativesOf(p)
		if len(alts) > 3 {
			t.Fatalf("AlternativesOf(%q) returned %d alternatives", p, len(alts))
		}
		if slices.Contains(alts, p) {
			t.Fatalf("AlternativesOf(%q) contains the original", p)
		}
		seen := map[string]bool{}
		for _, a := range alts {
			if seen[a] {
				t.Fatalf("AlternativesOf(%q) has duplicate %q", p, a)
			}
			seen[a] = true
		}
	}
}

func TestAlternativesOfIsSymmetric(t *testing.T) {
	for _, p := range samplePaths() {
		for _, alt := range AlternativesOf(p) {
			if !slices.Contains(AlternativesOf(alt), p) {
				t.Fatalf("AlternativesOf(%q) = %q does not lead back to %q", alt, AlternativesOf(alt), p)
			}
		}
	}
}

func samplePaths() []string {
	return []string{
		"",
		"x.pdf",
		"books/x.pdf",
		"books/books/x.pdf",
		"books/",
		"books",
		"Books/x.pdf",
		"1700000000000-ab12cd.pdf",
		"books/1700000000000-ab12cd.pdf",
		"dept/sem1/intro.pdf",
		"books/dept/sem1/intro.pdf",
		"/books/x.pdf",
	}
}

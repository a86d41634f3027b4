// Package textfold folds text for case and accent insensitive matching.
package textfold

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Folder lowercases text and strips combining marks so "Ogof Ffynnon Ddû"
// folds to "ogof ffynnon ddu". A Folder reuses one transformer chain and is
// not safe for concurrent use.
type Folder struct {
	chain transform.Transformer
}

// New builds a Folder.
func New() *Folder {
	return &Folder{chain: transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())}
}

// String folds s. Text the chain cannot transform is only lowercased.
func (f *Folder) String(s string) string {
	if s == "" {
		return ""
	}
	out, _, err := transform.String(f.chain, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// String folds s with a fresh Folder.
func String(s string) string {
	return New().String(s)
}

// Join folds each non-blank value with f and joins them one per line.
func (f *Folder) Join(values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		parts = append(parts, f.String(v))
	}
	return strings.Join(parts, "\n")
}

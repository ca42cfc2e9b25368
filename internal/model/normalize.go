package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Fold returns the canonical case-insensitive form of s: Unicode case
// folding plus whitespace collapsed to single spaces and trimmed. It is the
// single normalization authority for vocabulary matching; every *_norm
// column is written and queried through it.
func Fold(s string) string {
	folded := cases.Fold().String(s)
	return strings.Join(strings.Fields(folded), " ")
}

// Slugify derives a deterministic slug from a display name: folded, with
// non-alphanumeric runs collapsed to single hyphens.
func Slugify(name string) string {
	folded := Fold(name)

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

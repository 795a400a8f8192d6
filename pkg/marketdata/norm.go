package marketdata

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeQuestion produces a dedup key for a market question: lowercased,
// accents stripped, punctuation dropped, whitespace collapsed. Upstream
// listings occasionally repeat the same question under different ids.
func NormalizeQuestion(q string) string {
	q = strings.ToLower(q)

	// Remove accents
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	q, _, _ = transform.String(t, q)

	// Drop punctuation
	q = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, q)

	// Normalize spaces
	q = strings.Join(strings.Fields(q), " ")

	return strings.TrimSpace(q)
}

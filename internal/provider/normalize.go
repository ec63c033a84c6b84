package provider

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// NormalizeCode: canonical form of a scanned or printed code.
// Scanners in keyboard-wedge mode deliver full-width digits and accented
// letters depending on the device locale, e.g. "ＡＢ-12ñ" -> "AB12N".
func NormalizeCode(raw string) string {
	t := transform.Chain(width.Fold, norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, raw)
	if err != nil {
		folded = raw
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToUpper(strings.TrimSpace(folded)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// modelKey: fixed-length prefix of a normalized code. Codes shorter than
// the prefix are their own model.
func modelKey(normalized string, prefixLen int) string {
	r := []rune(normalized)
	if prefixLen <= 0 || len(r) <= prefixLen {
		return normalized
	}
	return string(r[:prefixLen])
}

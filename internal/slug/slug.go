// Package slug строит URL-идентификаторы товаров и коробок из названий.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Make приводит название к виду "lower-case-ascii": диакритика снимается,
// остальные символы вне [a-z0-9] становятся разделителями.
func Make(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r == 'đ':
			r = 'd'
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		default:
			if b.Len() > 0 {
				dash = true
			}
			continue
		}
		if dash {
			b.WriteByte('-')
			dash = false
		}
		b.WriteRune(r)
	}

	return b.String()
}

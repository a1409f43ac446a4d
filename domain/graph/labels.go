package graph

import (
	"strings"
	"unicode"
)

// Humanize derives a display label from a raw identifier such as
// "service_account", "reads-from" or "apiGateway". Separators and camel-case
// boundaries split words; all-caps words are kept, others are title-cased.
func Humanize(raw string) string {
	runes := []rune(strings.TrimSpace(raw))
	if len(runes) == 0 {
		return ""
	}

	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}

	for i, r := range runes {
		switch {
		case isSeparator(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && wordBoundary(runes, i):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()

	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

func isSeparator(r rune) bool {
	switch r {
	case '_', '-', '.', '/', ':':
		return true
	}
	return unicode.IsSpace(r)
}

// wordBoundary reports whether the upper-case rune at i starts a new word:
// after a lower-case letter or digit, or as the last capital of an acronym
// followed by a lower-case letter ("APIGateway").
func wordBoundary(runes []rune, i int) bool {
	prev := runes[i-1]
	if unicode.IsLower(prev) || unicode.IsDigit(prev) {
		return true
	}
	return unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
}

func titleWord(w string) string {
	if strings.ToUpper(w) == w {
		return w
	}
	rs := []rune(strings.ToLower(w))
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}

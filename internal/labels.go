package internal

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FieldLabel derives a human-readable label from a canonical key:
// "itemModifiedBy" -> "Modified By", "last_seen-at" -> "Last Seen At".
func FieldLabel(key string) string {
	words := splitKeyWords(key)
	if len(words) > 1 && words[0] == "item" {
		words = words[1:]
	}
	// Caser is not safe for concurrent use.
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

// splitKeyWords breaks a key on camelCase humps, underscores, hyphens and
// spaces and lowercases every word.
func splitKeyWords(key string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(key)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

package app

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseSearchTerms extracts the tokens of a query worth highlighting in
// results: individual terms plus the whole trimmed query, sorted and unique.
// Prefixed tokens such as "id:A000045" and lone non-digit characters are dropped.
func ParseSearchTerms(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	fields := strings.FieldsFunc(query, func(r rune) bool {
		return r == ';' || r == ',' || unicode.IsSpace(r)
	})

	terms := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		tok := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if tok == "" || strings.Contains(tok, ":") {
			continue
		}
		if utf8.RuneCountInString(tok) == 1 {
			r, _ := utf8.DecodeRuneInString(tok)
			if !unicode.IsDigit(r) {
				continue
			}
		}
		terms = append(terms, tok)
	}
	terms = append(terms, query)

	slices.Sort(terms)
	return slices.Compact(terms)
}

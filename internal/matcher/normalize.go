package matcher

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Tokens stripped from names before comparison so that "Flying Monkeys
// Brewery Inc." and "Flying Monkeys Brewery" normalize identically.
var corporateSuffixes = map[string]struct{}{
	"inc":          {},
	"llc":          {},
	"ltd":          {},
	"co":           {},
	"corp":         {},
	"company":      {},
	"restaurant":   {},
	"incorporated": {},
}

// Tokens stripped from addresses so that "123 Main Street" and "123 Main St"
// compare equal.
var streetSuffixes = map[string]struct{}{
	"street":    {},
	"st":        {},
	"avenue":    {},
	"ave":       {},
	"boulevard": {},
	"blvd":      {},
	"road":      {},
	"rd":        {},
	"drive":     {},
	"dr":        {},
	"lane":      {},
	"ln":        {},
	"court":     {},
	"ct":        {},
	"place":     {},
	"pl":        {},
	"suite":     {},
	"ste":       {},
	"unit":      {},
	"floor":     {},
	"fl":        {},
}

// Directional tokens collapse to their abbreviation so that "Dunlop Street
// East" and "Dunlop St E" normalize identically.
var directionals = map[string]string{
	"east":      "e",
	"west":      "w",
	"north":     "n",
	"south":     "s",
	"northeast": "ne",
	"northwest": "nw",
	"southeast": "se",
	"southwest": "sw",
}

// NormalizeName lowercases, strips punctuation, collapses whitespace, and
// drops corporate suffix tokens.
func NormalizeName(s string) string {
	return joinTokens(tokenize(s), corporateSuffixes)
}

// NormalizeAddress lowercases, strips punctuation, collapses whitespace,
// abbreviates directionals, and drops common street suffix tokens.
func NormalizeAddress(s string) string {
	tokens := tokenize(s)
	for i, tok := range tokens {
		if short, ok := directionals[tok]; ok {
			tokens[i] = short
		}
	}
	return joinTokens(tokens, streetSuffixes)
}

// NormalizePhone strips every non-digit character and drops a NANP country
// code, so "+1 (705) 721-8989" and "705-721-8989" normalize identically.
// Phone numbers either match exactly after normalization or not at all.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// similarity returns 1 - dist/maxlen over two normalized strings, in [0, 1].
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	dist := levenshtein.ComputeDistance(a, b)
	if dist >= longest {
		return 0
	}
	return 1 - float64(dist)/float64(longest)
}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func joinTokens(tokens []string, drop map[string]struct{}) string {
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, skip := drop[tok]; skip {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

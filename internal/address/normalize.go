package address

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var abbreviations = map[string]string{
	"rd":   "road",
	"st":   "street",
	"str":  "street",
	"ave":  "avenue",
	"av":   "avenue",
	"ln":   "lane",
	"dr":   "drive",
	"cl":   "close",
	"cres": "crescent",
	"ct":   "court",
	"gdns": "gardens",
	"gr":   "grove",
	"pl":   "place",
	"sq":   "square",
	"ter":  "terrace",
	"terr": "terrace",
	"wy":   "way",
	"stn":  "station",
	"nr":   "near",
}

var streetSuffixes = map[string]bool{
	"road": true, "street": true, "avenue": true, "lane": true, "drive": true,
	"close": true, "crescent": true, "court": true, "gardens": true, "grove": true,
	"place": true, "square": true, "terrace": true, "way": true, "row": true,
	"walk": true, "hill": true, "rise": true, "mews": true, "parade": true,
	"green": true, "view": true, "boulevard": true,
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true, "in": true,
	"at": true, "on": true, "near": true, "by": true, "to": true, "from": true,
	"flat": true, "number": true, "no": true,
}

var houseNumberPattern = regexp.MustCompile(`^\d{1,5}[a-z]?$`)

// fold strips diacritics so "Café Rouge" and "Cafe Rouge" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Tokens lowercases, folds, strips punctuation and expands street
// abbreviations.
func Tokens(s string) []string {
	s = strings.ToLower(fold(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	fields := strings.Fields(s)
	for i, f := range fields {
		if full, ok := abbreviations[f]; ok {
			fields[i] = full
		}
	}
	return fields
}

// Normalize returns the canonical comparison form of an address.
func Normalize(s string) string {
	return strings.Join(Tokens(s), " ")
}

// parsed is an address split into house number and street.
type parsed struct {
	norm   string
	tokens []string
	house  string
	street []string // street name without suffix
}

func parse(s string) parsed {
	tokens := Tokens(s)
	p := parsed{norm: strings.Join(tokens, " "), tokens: tokens}

	start := 0
	for i, tok := range tokens {
		if !houseNumberPattern.MatchString(tok) {
			continue
		}
		p.house = tok
		start = i + 1
		// "52 a David Road" spells the letter as its own token.
		if isDigits(tok) && i+2 < len(tokens) && len(tokens[i+1]) == 1 && tokens[i+1][0] >= 'a' && tokens[i+1][0] <= 'h' {
			p.house = tok + tokens[i+1]
			start = i + 2
		}
		break
	}

	for _, tok := range tokens[start:] {
		if streetSuffixes[tok] {
			break
		}
		if stopwords[tok] {
			continue
		}
		p.street = append(p.street, tok)
	}
	return p
}

func (p parsed) streetKey() string {
	return strings.Join(p.street, " ")
}

// meaningfulWords are tokens that identify a place: not numbers, suffixes or
// filler.
func meaningfulWords(tokens []string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range tokens {
		if len(tok) < 3 || streetSuffixes[tok] || stopwords[tok] || isDigits(tok) || houseNumberPattern.MatchString(tok) {
			continue
		}
		out[tok] = true
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// splitHouse separates "52a" into "52" and "a".
func splitHouse(h string) (digits, letter string) {
	i := 0
	for i < len(h) && h[i] >= '0' && h[i] <= '9' {
		i++
	}
	return h[:i], h[i:]
}

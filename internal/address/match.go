package address

import "strings"

// MatchKind classifies how a spoken address relates to the caller's history.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchExact
	MatchSubstring
	MatchCore
	MatchFuzzyHouseNumber
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchSubstring:
		return "substring"
	case MatchCore:
		return "core"
	case MatchFuzzyHouseNumber:
		return "fuzzy_house_number"
	default:
		return "none"
	}
}

// HistoryMatch is the result of MatchHistory.
type HistoryMatch struct {
	Kind  MatchKind
	Known string // the history entry that matched, as stored
	// Significant is set on fuzzy matches whose house number had to be
	// reinterpreted. Those must be confirmed by the caller, never substituted.
	Significant bool
}

// Trusted reports whether the match verifies the address without asking.
func (m HistoryMatch) Trusted() bool {
	switch m.Kind {
	case MatchExact, MatchSubstring, MatchCore:
		return true
	case MatchFuzzyHouseNumber:
		return !m.Significant
	}
	return false
}

// NeedsClarification reports whether the caller must confirm Known.
func (m HistoryMatch) NeedsClarification() bool {
	return m.Kind == MatchFuzzyHouseNumber && m.Significant
}

// houseLetterConfusions maps what a recognizer hears after the real house
// digits to the letter the caller said: "52A" spoken as "fifty-two eight"
// arrives as "528" or "5208".
var houseLetterConfusions = map[string]string{
	"8":  "a",
	"08": "a",
	"3":  "e",
	"03": "e",
}

// MatchHistory compares spoken against history and returns the strongest
// match. Preference: exact, core, substring, fuzzy house number.
func MatchHistory(spoken string, history []string) HistoryMatch {
	sp := parse(spoken)
	if sp.norm == "" {
		return HistoryMatch{}
	}

	var core, substring, fuzzy HistoryMatch
	for _, known := range history {
		kp := parse(known)
		if kp.norm == "" {
			continue
		}
		if kp.norm == sp.norm {
			return HistoryMatch{Kind: MatchExact, Known: known}
		}

		sameStreet := len(sp.street) > 0 && sp.streetKey() == kp.streetKey()

		if core.Kind == MatchNone && sameStreet && sp.house != "" && sp.house == kp.house {
			core = HistoryMatch{Kind: MatchCore, Known: known}
			continue
		}

		if substring.Kind == MatchNone && housesCompatible(sp.house, kp.house) && containsPhrase(sp.norm, kp.norm) {
			substring = HistoryMatch{Kind: MatchSubstring, Known: known}
			continue
		}

		if sameStreet && sp.house != "" && kp.house != "" {
			ok, significant := houseResembles(sp.house, kp.house)
			if !ok {
				continue
			}
			// Prefer an insignificant fuzzy match over a significant one.
			if fuzzy.Kind == MatchNone || (fuzzy.Significant && !significant) {
				fuzzy = HistoryMatch{Kind: MatchFuzzyHouseNumber, Known: known, Significant: significant}
			}
		}
	}

	for _, m := range []HistoryMatch{core, substring, fuzzy} {
		if m.Kind != MatchNone {
			return m
		}
	}
	return HistoryMatch{}
}

// housesCompatible is false only when both sides give different numbers.
func housesCompatible(a, b string) bool {
	return a == "" || b == "" || a == b
}

// containsPhrase reports whether the shorter normalized address appears in
// the longer one on token boundaries. Very short phrases never match.
func containsPhrase(a, b string) bool {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) < 8 {
		return false
	}
	return strings.Contains(" "+long+" ", " "+short+" ")
}

// houseResembles decides whether spoken could be a mishearing of known.
// Dropping the letter ("52" for "52A") is insignificant. Reading the letter
// as digits ("5208" for "52A") or swapping one letter for another ("52B" for
// "52A") is significant.
func houseResembles(spoken, known string) (ok, significant bool) {
	sd, sl := splitHouse(spoken)
	kd, kl := splitHouse(known)

	switch {
	case sd == kd && sl == "" && kl != "":
		return true, false
	case sd == kd && sl != "" && kl != "" && sl != kl:
		return true, true
	case kl != "" && sl == "" && len(sd) > len(kd) && sd[:len(kd)] == kd:
		if houseLetterConfusions[sd[len(kd):]] == kl {
			return true, true
		}
	}
	return false, false
}

// Package disambig runs the sub-dialogue that settles which of several
// same-named places the caller meant.
package disambig

import (
	"fmt"
	"strings"

	"github.com/troikatech/cab-voice-agent/internal/address"
	"github.com/troikatech/cab-voice-agent/internal/booking"
)

// Pending is an open question about one address field. A session holds at
// most one; it is the only thing the caller's next utterance is matched
// against while it exists.
type Pending struct {
	Field      booking.FieldName
	Road       string
	Candidates []address.Candidate
	// Prompts counts how often the candidate list has been offered.
	Prompts int
}

func New(a booking.Ambiguity) *Pending {
	return &Pending{Field: a.Field, Road: a.Road, Candidates: a.Candidates}
}

// Areas lists candidate labels in presentation order.
func (p *Pending) Areas() []string {
	out := make([]string, len(p.Candidates))
	for i, c := range p.Candidates {
		out[i] = c.Label()
	}
	return out
}

// Prompt is the instruction for offering the candidates as natural speech.
func (p *Pending) Prompt() string {
	p.Prompts++
	field := strings.ReplaceAll(string(p.Field), "_", " ")
	lead := "There is more than one"
	if p.Prompts > 1 {
		lead = "The caller's answer did not match. Say again that there is more than one"
	}
	return fmt.Sprintf("%s %s for the %s, in %s. Ask which one the caller means. Say the areas naturally, do not number them.",
		lead, p.Road, field, joinNatural(p.Areas()))
}

func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
}

// Resolve applies the caller's reply. On a match the field takes the
// candidate's formatted address, verified and area-resolved, and the question
// is settled. Otherwise it has to be offered again.
func (p *Pending) Resolve(b *booking.KnownBooking, reply string) (address.Candidate, bool) {
	c, ok := p.Match(reply)
	if ok {
		b.ResolveArea(p.Field, c)
	}
	return c, ok
}

// Match resolves the caller's reply to one candidate. Strategies run in
// order and the first that matches any candidate wins: whole-area match,
// three-letter prefix, known mishearings, then at most two edits.
func (p *Pending) Match(text string) (address.Candidate, bool) {
	words := replyWords(text)
	if len(words) == 0 {
		return address.Candidate{}, false
	}
	reply := strings.Join(words, " ")

	for _, strategy := range []func(reply string, words []string, area string) bool{
		matchWhole,
		matchPrefix,
		matchMisheard,
		matchEdits,
	} {
		for _, c := range p.Candidates {
			area := address.Normalize(c.Label())
			if area == "" {
				continue
			}
			if strategy(reply, words, area) {
				return c, true
			}
		}
	}
	return address.Candidate{}, false
}

var fillers = map[string]bool{
	"the": true, "one": true, "in": true, "at": true, "near": true, "by": true,
	"it's": true, "its": true, "it": true, "is": true, "that": true, "i": true,
	"mean": true, "meant": true, "please": true, "yes": true, "yeah": true,
	"no": true, "um": true, "uh": true, "erm": true, "road": true, "street": true,
	"over": true, "side": true, "area": true, "of": true, "a": true,
}

func replyWords(text string) []string {
	var out []string
	for _, w := range address.Tokens(text) {
		if !fillers[w] {
			out = append(out, w)
		}
	}
	return out
}

func matchWhole(reply string, _ []string, area string) bool {
	padded := " " + reply + " "
	if strings.Contains(padded, " "+area+" ") {
		return true
	}
	return len(reply) >= 4 && strings.Contains(" "+area+" ", padded)
}

func matchPrefix(_ string, words []string, area string) bool {
	for _, aw := range strings.Fields(area) {
		if len(aw) < 3 {
			continue
		}
		for _, w := range words {
			if len(w) >= 3 && w[:3] == aw[:3] {
				return true
			}
		}
	}
	return false
}

// misheard lists how recognizers commonly render area names.
var misheard = map[string][]string{
	"solihull":         {"solly hull", "soli hull", "sally hull", "solihul"},
	"coventry":         {"coven tree", "covent tree"},
	"moseley":          {"mosely", "mosley", "mozzly"},
	"hall green":       {"whole green", "hole green", "haul green"},
	"kings heath":      {"king's heath", "kings heeth"},
	"acocks green":     {"a cocks green", "acock green"},
	"sutton coldfield": {"sutton cold field", "sutton"},
	"nuneaton":         {"nun eaton", "none eaton"},
	"leamington":       {"lemington", "leamington spa"},
	"erdington":        {"eardington", "urdington"},
	"shirley":          {"shirly", "sherley"},
}

func matchMisheard(reply string, _ []string, area string) bool {
	padded := " " + reply + " "
	for _, variant := range misheard[area] {
		v := strings.Join(replyWords(variant), " ")
		if v != "" && strings.Contains(padded, " "+v+" ") {
			return true
		}
	}
	return false
}

// matchEdits compares the area against every run of reply words with the
// same word count.
func matchEdits(_ string, words []string, area string) bool {
	n := len(strings.Fields(area))
	for i := 0; i+n <= len(words); i++ {
		if withinEdits(strings.Join(words[i:i+n], " "), area, 2) {
			return true
		}
	}
	return false
}

// withinEdits reports whether the Levenshtein distance between a and b is at
// most limit, abandoning the table once every cell in a row exceeds it.
func withinEdits(a, b string, limit int) bool {
	if a == b {
		return true
	}
	if d := len(a) - len(b); d > limit || -d > limit {
		return false
	}
	if len(a) < 4 || len(b) < 4 {
		return false
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := range prev {
		prev[i] = i
	}
	for y := 1; y <= len(a); y++ {
		cur[0] = y
		rowBest := y
		for x := 1; x <= len(b); x++ {
			cost := 1
			if a[y-1] == b[x-1] {
				cost = 0
			}
			cur[x] = min(prev[x-1]+cost, min(cur[x-1], prev[x])+1)
			rowBest = min(rowBest, cur[x])
		}
		if rowBest > limit {
			return false
		}
		cur, prev = prev, cur
	}
	return prev[len(b)] <= limit
}

package transcript

import (
	"strings"
	"unicode"
)

var acknowledgements = map[string]bool{
	"thanks":              true,
	"thank you":           true,
	"thank you very much": true,
	"thanks very much":    true,
	"cheers":              true,
	"bye":                 true,
	"bye bye":             true,
	"goodbye":             true,
	"you":                 true,
	"okay thanks":         true,
}

// rejectPhantom drops acknowledgement-like fragments heard while, or just
// after, the agent spoke: they are the line echoing the agent back.
func (f *Filter) rejectPhantom(u utterance, c Context) string {
	if !acknowledgements[u.norm] {
		return ""
	}
	if c.AgentSpeaking {
		return "acknowledgement during agent speech"
	}
	if !c.AgentStoppedAt.IsZero() && c.Now.Sub(c.AgentStoppedAt) < f.cfg.PhantomWindow {
		return "acknowledgement right after agent speech"
	}
	return ""
}

var addressIndicators = map[string]bool{
	"road": true, "rd": true, "street": true, "st": true, "avenue": true,
	"lane": true, "drive": true, "close": true, "crescent": true, "court": true,
	"way": true, "place": true, "square": true, "terrace": true, "grove": true,
	"gardens": true, "station": true, "airport": true, "hospital": true,
	"hotel": true, "centre": true, "center": true, "park": true, "university": true,
	"school": true, "church": true, "pub": true, "shop": true, "house": true,
	"home": true, "work": true, "office": true, "terminal": true, "postcode": true,
}

var actionWords = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "yup": true, "no": true, "nope": true,
	"correct": true, "right": true, "wrong": true, "sure": true, "okay": true,
	"ok": true, "please": true, "thanks": true, "book": true, "booking": true,
	"cancel": true, "change": true, "modify": true, "taxi": true, "cab": true,
	"car": true, "now": true, "asap": true, "today": true, "tomorrow": true,
	"tonight": true, "morning": true, "afternoon": true, "evening": true,
	"from": true, "to": true, "pickup": true, "pick": true, "going": true,
	"passenger": true, "passengers": true, "people": true, "person": true,
	"luggage": true, "bags": true, "suitcase": true, "suitcases": true,
	"minutes": true, "hour": true, "hours": true, "help": true, "sorry": true,
	"hello": true, "hi": true, "what": true, "repeat": true, "wait": true,
	"hold": true, "estate": true, "saloon": true, "minibus": true, "mpv": true,
	"wheelchair": true, "bye": true, "goodbye": true, "that's": true, "it": true,
	"nothing": true, "else": true, "same": true, "just": true, "me": true,
}

var nameIntroductions = []string{"my name is", "i am", "i'm", "this is", "call me", "it's", "name's"}

// rejectGibberish drops 2 to 4 word fragments that carry nothing a booking
// conversation could use. Anything outside ASCII is presumed meaningful.
func rejectGibberish(u utterance, c Context) string {
	if len(u.words) < 2 || len(u.words) > 4 || c.AwaitingName {
		return ""
	}
	if strings.IndexFunc(u.raw, func(r rune) bool { return r > unicode.MaxASCII }) >= 0 {
		return ""
	}
	for _, p := range nameIntroductions {
		if strings.HasPrefix(u.norm, p+" ") || strings.Contains(u.norm, " "+p+" ") {
			return ""
		}
	}

	vocab := make(map[string]bool)
	for _, v := range c.Vocabulary {
		for _, w := range strings.Fields(normalize(v)) {
			vocab[w] = true
		}
	}
	for _, w := range u.words {
		if addressIndicators[w] || actionWords[w] || numberWords[w] || cityNames[w] || vocab[w] {
			return ""
		}
		if strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			return ""
		}
	}
	return "no address, name or action"
}

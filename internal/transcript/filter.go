// Package transcript decides which finalized caller utterances are real.
// Every rule is a pure predicate; the Filter runs them in a fixed order and
// stops at the first rejection.
package transcript

import (
	"strings"
	"time"
	"unicode"
)

// Reason names the rule that rejected a transcript.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonEmpty         Reason = "empty"
	ReasonEcho          Reason = "echo"
	ReasonHallucination Reason = "hallucination"
	ReasonPhantom       Reason = "phantom"
	ReasonGibberish     Reason = "gibberish"
)

// Context is what the session knows at the moment a transcript arrives.
type Context struct {
	// AgentUtterance is the agent's current (or most recent) spoken text.
	AgentUtterance string
	AgentSpeaking  bool
	// AgentStoppedAt is when the agent's audio last ended. Zero if never.
	AgentStoppedAt time.Time
	Now            time.Time
	// AudioDuration is the length of the committed caller audio, zero when
	// unknown (typed input, missing commit).
	AudioDuration time.Duration
	// Vocabulary adds words that count as meaningful, e.g. the areas of a
	// pending disambiguation.
	Vocabulary []string
	// AwaitingName is set when the agent has just asked for the caller's name.
	AwaitingName bool
}

// Verdict is the result of Check.
type Verdict struct {
	Accepted bool
	Reason   Reason
	Detail   string
}

type Config struct {
	MinChars          int
	EchoMinChars      int
	PhantomWindow     time.Duration
	MaxWordsPerSecond float64
	SignaturePhrases  []string
}

func DefaultConfig() Config {
	return Config{
		MinChars:          2,
		EchoMinChars:      20,
		PhantomWindow:     1500 * time.Millisecond,
		MaxWordsPerSecond: 6,
	}
}

// Rule is one ordered check. Reject returns a non-empty detail when the
// transcript must be dropped.
type Rule struct {
	Reason Reason
	Reject func(u utterance, c Context) string
}

type Filter struct {
	cfg   Config
	rules []Rule
}

func New(cfg Config) *Filter {
	d := DefaultConfig()
	if cfg.MinChars <= 0 {
		cfg.MinChars = d.MinChars
	}
	if cfg.EchoMinChars <= 0 {
		cfg.EchoMinChars = d.EchoMinChars
	}
	if cfg.PhantomWindow <= 0 {
		cfg.PhantomWindow = d.PhantomWindow
	}
	if cfg.MaxWordsPerSecond <= 0 {
		cfg.MaxWordsPerSecond = d.MaxWordsPerSecond
	}

	f := &Filter{cfg: cfg}
	f.rules = []Rule{
		{ReasonEmpty, f.rejectEmpty},
		{ReasonEcho, f.rejectEcho},
		{ReasonHallucination, f.rejectHallucination},
		{ReasonPhantom, f.rejectPhantom},
		{ReasonGibberish, rejectGibberish},
	}
	return f
}

// Check runs every rule in order.
func (f *Filter) Check(text string, c Context) Verdict {
	u := newUtterance(text)
	for _, r := range f.rules {
		if detail := r.Reject(u, c); detail != "" {
			return Verdict{Reason: r.Reason, Detail: detail}
		}
	}
	return Verdict{Accepted: true}
}

// utterance is a transcript pre-split for the rules.
type utterance struct {
	raw   string
	norm  string
	words []string
}

func newUtterance(text string) utterance {
	norm := normalize(text)
	return utterance{raw: strings.TrimSpace(text), norm: norm, words: strings.Fields(norm)}
}

// normalize lowercases and replaces everything but letters, digits and
// apostrophes with single spaces.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r) || r == '\'' {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func (f *Filter) rejectEmpty(u utterance, _ Context) string {
	n := 0
	for _, r := range u.raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	if n < f.cfg.MinChars {
		return "too short"
	}
	return ""
}

var agentSignatures = []string{
	"how can i help you",
	"is there anything else i can help",
	"let me check that for you",
	"your booking is confirmed",
	"thank you for calling",
	"could you confirm your pickup",
	"shall i go ahead and book",
}

func (f *Filter) rejectEcho(u utterance, c Context) string {
	agent := normalize(c.AgentUtterance)
	if agent != "" && len(u.norm) >= f.cfg.EchoMinChars && strings.Contains(agent, u.norm) {
		return "substring of agent speech"
	}
	for _, p := range agentSignatures {
		if strings.Contains(u.norm, p) {
			return "agent phrase: " + p
		}
	}
	for _, p := range f.cfg.SignaturePhrases {
		if p = normalize(p); p != "" && strings.Contains(u.norm, p) {
			return "agent phrase: " + p
		}
	}
	return ""
}

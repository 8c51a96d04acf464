package transcript

import (
	"testing"
	"time"
)

func TestFilterCheck(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f := New(DefaultConfig())

	tests := []struct {
		name   string
		text   string
		ctx    Context
		reason Reason
	}{
		{"single letter", "k", Context{}, ReasonEmpty},
		{"punctuation only", " ... ", Context{}, ReasonEmpty},
		{
			"long substring of agent speech",
			"pickup is 52A David Road",
			Context{AgentUtterance: "Your pickup is 52A David Road, is that correct?"},
			ReasonEcho,
		},
		{"agent signature phrase", "how can I help you today", Context{}, ReasonEcho},
		{"stock outro", "Thanks for watching!", Context{}, ReasonHallucination},
		{"three cities", "Coventry Birmingham London", Context{}, ReasonHallucination},
		{"number word run", "one two three four five six", Context{}, ReasonHallucination},
		{"digit run", "1 2 3 4 5", Context{}, ReasonHallucination},
		{
			"faster than speech",
			"I need a taxi from the station to the hospital please now",
			Context{AudioDuration: time.Second},
			ReasonHallucination,
		},
		{
			"thanks right after agent stopped",
			"Thanks.",
			Context{Now: now, AgentStoppedAt: now.Add(-500 * time.Millisecond)},
			ReasonPhantom,
		},
		{"bye while agent speaks", "bye bye", Context{AgentSpeaking: true}, ReasonPhantom},
		{"unrelated words", "purple monkey dishwasher", Context{}, ReasonGibberish},
		{"area not in vocabulary", "over in Shirley", Context{}, ReasonGibberish},
		{
			"outro inside phantom window is a hallucination",
			"thanks for watching",
			Context{Now: now, AgentStoppedAt: now.Add(-100 * time.Millisecond)},
			ReasonHallucination,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := f.Check(tt.text, tt.ctx)
			if v.Accepted {
				t.Fatalf("accepted %q, want %s", tt.text, tt.reason)
			}
			if v.Reason != tt.reason {
				t.Fatalf("reason = %s (%s), want %s", v.Reason, v.Detail, tt.reason)
			}
		})
	}
}

func TestFilterAccepts(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f := New(DefaultConfig())

	tests := []struct {
		name string
		text string
		ctx  Context
	}{
		{"full booking", "from 52A David Road to Coventry station, two passengers, now", Context{}},
		{"short address", "David Road", Context{AgentUtterance: "What is your pickup on David Road?"}},
		{"yes right after question", "Yes", Context{Now: now, AgentStoppedAt: now.Add(-200 * time.Millisecond)}},
		{"thanks long after agent", "thanks", Context{Now: now, AgentStoppedAt: now.Add(-5 * time.Second)}},
		{"area in vocabulary", "over in Shirley", Context{Vocabulary: []string{"Shirley", "Moseley"}}},
		{"name introduction", "my name is Priya", Context{}},
		{"bare name when asked", "John Smith", Context{AwaitingName: true}},
		{"non latin script", "मेरा नाम राज", Context{}},
		{"plausible speech rate", "I need a taxi from the station to the hospital please now", Context{AudioDuration: 4 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v := f.Check(tt.text, tt.ctx); !v.Accepted {
				t.Fatalf("rejected %q: %s (%s)", tt.text, v.Reason, v.Detail)
			}
		})
	}
}

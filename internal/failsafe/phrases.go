package failsafe

import "strings"

var farewellMarkers = []string{
	"goodbye", "good bye", "bye for now", "have a safe journey", "have a lovely day",
	"have a nice day", "have a great day", "take care", "thanks for calling",
	"thank you for calling",
}

var closingQuestions = []string{
	"anything else", "something else i can help", "help you with anything",
}

var confirmationRequests = []string{
	"is that correct", "is that right", "shall i book", "shall i go ahead",
	"can you confirm", "could you confirm", "would you like me to book",
	"is that ok", "is that okay", "does that sound right",
}

func containsAny(text string, phrases []string) bool {
	t := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

func IsFarewell(text string) bool { return containsAny(text, farewellMarkers) }

func IsClosingQuestion(text string) bool { return IsQuestion(text) && containsAny(text, closingQuestions) }

func IsConfirmationRequest(text string) bool { return containsAny(text, confirmationRequests) }

// IsQuestion is true when the utterance ends, or any sentence ends, with a
// question mark.
func IsQuestion(text string) bool { return strings.Contains(text, "?") }

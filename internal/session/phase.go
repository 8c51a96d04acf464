package session

// Phase is where the call is in its lifecycle. Disambiguation is not a
// phase: it is the typed pending question the session holds while it
// interrupts collecting or confirming.
type Phase int

const (
	Connecting Phase = iota
	Greeting
	Collecting
	Confirming
	Booked
	Closing
	Ended
)

func (p Phase) String() string {
	switch p {
	case Connecting:
		return "connecting"
	case Greeting:
		return "greeting"
	case Collecting:
		return "collecting"
	case Confirming:
		return "confirming"
	case Booked:
		return "booked"
	case Closing:
		return "closing"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// Disambiguating is the state name reported while a pending question is
// open.
const Disambiguating = "disambiguating"

// canTransition lists the allowed phase moves. Any live phase may move to
// Closing, and only Closing reaches Ended.
func canTransition(from, to Phase) bool {
	if from == to {
		return true
	}
	if to == Closing {
		return from != Ended
	}
	switch from {
	case Connecting:
		return to == Greeting || to == Ended
	case Greeting:
		return to == Collecting
	case Collecting:
		return to == Confirming
	case Confirming:
		return to == Collecting || to == Booked
	case Booked:
		return to == Collecting || to == Confirming
	case Closing:
		return to == Ended
	}
	return false
}

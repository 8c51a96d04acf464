package session

// Inbound message kinds from the caller transport.
const (
	InInit   = "init"
	InAudio  = "audio"
	InText   = "text"
	InCommit = "commit"
	InHangup = "hangup"
)

// Outbound message kinds to the caller transport.
const (
	OutSessionReady     = "session_ready"
	OutAudio            = "audio"
	OutTranscript       = "transcript"
	OutUserSpeaking     = "user_speaking"
	OutAISpeaking       = "ai_speaking"
	OutBookingConfirmed = "booking_confirmed"
	OutBookingCancelled = "booking_cancelled"
	OutBookingModified  = "booking_modified"
	OutCallEnded        = "call_ended"
	OutError            = "error"
	// OutClear flushes audio the caller transport has buffered for playback.
	OutClear = "clear"
)

// Inbound is one decoded caller message. Audio is PCM16 at the transport's
// sample rate.
type Inbound struct {
	Kind   string
	CallID string
	Phone  string
	Locale string
	Audio  []byte
	Text   string
}

// Outbound is one message for the caller. Audio is PCM16 at the transport's
// sample rate.
type Outbound struct {
	Kind     string
	CallID   string
	Audio    []byte
	Role     string
	Text     string
	Speaking bool
	Reason   string
	Booking  interface{}
	Error    string
}

// Caller is the caller-facing transport as the session sees it.
type Caller interface {
	Send(msg Outbound) error
	SampleRate() int
	Close() error
}

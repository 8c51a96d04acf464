package realtime

// Server event types consumed by the session.
const (
	EventSessionCreated        = "session.created"
	EventSessionUpdated        = "session.updated"
	EventSpeechStarted         = "input_audio_buffer.speech_started"
	EventSpeechStopped         = "input_audio_buffer.speech_stopped"
	EventBufferCommitted       = "input_audio_buffer.committed"
	EventTranscriptionDone     = "conversation.item.input_audio_transcription.completed"
	EventTranscriptionFailed   = "conversation.item.input_audio_transcription.failed"
	EventResponseCreated       = "response.created"
	EventAudioDelta            = "response.audio.delta"
	EventAudioDone             = "response.audio.done"
	EventAudioTranscriptDelta  = "response.audio_transcript.delta"
	EventAudioTranscriptDone   = "response.audio_transcript.done"
	EventFunctionArgumentsDone = "response.function_call_arguments.done"
	EventResponseDone          = "response.done"
	EventError                 = "error"
)

// aliases maps newer event names onto the ones above.
var aliases = map[string]string{
	"response.output_audio.delta":            EventAudioDelta,
	"response.output_audio.done":             EventAudioDone,
	"response.output_audio_transcript.delta": EventAudioTranscriptDelta,
	"response.output_audio_transcript.done":  EventAudioTranscriptDone,
	"response.audio.transcript.delta":        EventAudioTranscriptDelta,
	"response.audio.transcript.done":         EventAudioTranscriptDone,
}

// Event is one server event. Only the fields the session reads are decoded.
type Event struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	ResponseID string `json:"response_id,omitempty"`

	// Audio and transcript deltas.
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`

	// Function calls.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	AudioStartMs int `json:"audio_start_ms,omitempty"`
	AudioEndMs   int `json:"audio_end_ms,omitempty"`

	Response *ResponseInfo `json:"response,omitempty"`
	Error    *ErrorInfo    `json:"error,omitempty"`
}

type ResponseInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ErrorInfo struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func canonicalType(t string) string {
	if c, ok := aliases[t]; ok {
		return c
	}
	return t
}

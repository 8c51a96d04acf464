package realtime

// Tool is a function the model may call.
type Tool struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// SessionConfig is sent as session.update once the socket is open.
type SessionConfig struct {
	Instructions       string
	Voice              string
	TranscriptionModel string
	VADThreshold       float64
	VADSilenceMs       int
	Tools              []Tool
}

// payload builds the session.update body. Turn detection never creates or
// interrupts responses on its own: the turn arbiter decides both.
func (c SessionConfig) payload() map[string]interface{} {
	return map[string]interface{}{
		"type": "session.update",
		"session": map[string]interface{}{
			"modalities":          []string{"audio", "text"},
			"instructions":        c.Instructions,
			"voice":               c.Voice,
			"input_audio_format":  "pcm16",
			"output_audio_format": "pcm16",
			"input_audio_transcription": map[string]interface{}{
				"model": c.TranscriptionModel,
			},
			"turn_detection": map[string]interface{}{
				"type":                "server_vad",
				"threshold":           c.VADThreshold,
				"prefix_padding_ms":   300,
				"silence_duration_ms": c.VADSilenceMs,
				"create_response":     false,
				"interrupt_response":  false,
			},
			"tools":       c.Tools,
			"tool_choice": "auto",
		},
	}
}

// FunctionTool declares a function with JSON-schema object parameters.
func FunctionTool(name, description string, properties map[string]interface{}, required ...string) Tool {
	params := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	return Tool{Type: "function", Name: name, Description: description, Parameters: params}
}

package session

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestWebCodecDecode(t *testing.T) {
	c := NewWebCodec()
	pcm := base64.StdEncoding.EncodeToString([]byte{1, 0, 2, 0})

	tests := []struct {
		name    string
		msg     string
		want    Inbound
		wantErr bool
	}{
		{"init", `{"type":"init","call_id":"web-1","phone":"07700900123","sample_rate":16000}`, Inbound{Kind: InInit, CallID: "web-1", Phone: "07700900123"}, false},
		{"text", `{"type":"text","text":"hello"}`, Inbound{Kind: InText, Text: "hello"}, false},
		{"commit", `{"type":"commit"}`, Inbound{Kind: InCommit}, false},
		{"hangup", `{"type":"hangup"}`, Inbound{Kind: InHangup}, false},
		{"bad audio", `{"type":"audio","audio":"%%%"}`, Inbound{}, true},
		{"unknown", `{"type":"dance"}`, Inbound{}, true},
		{"not json", `nope`, Inbound{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Decode([]byte(tt.msg))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Kind != tt.want.Kind || got.CallID != tt.want.CallID || got.Phone != tt.want.Phone || got.Text != tt.want.Text {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if c.SampleRate() != 16000 {
		t.Errorf("SampleRate() = %d, want 16000 after init", c.SampleRate())
	}
	in, err := c.Decode([]byte(`{"type":"audio","audio":"` + pcm + `"}`))
	if err != nil || len(in.Audio) != 4 {
		t.Errorf("audio = %v, %v", in.Audio, err)
	}
}

func TestWebCodecEncode(t *testing.T) {
	c := NewWebCodec()

	frames, err := c.Encode(Outbound{Kind: OutClear})
	if err != nil || len(frames) != 0 {
		t.Errorf("clear should produce no frames, got %d", len(frames))
	}

	frames, err = c.Encode(Outbound{Kind: OutCallEnded, Reason: "caller_hangup"})
	if err != nil || len(frames) != 1 {
		t.Fatalf("Encode() = %v, %v", frames, err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(frames[0], &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != OutCallEnded || m["reason"] != "caller_hangup" {
		t.Errorf("frame = %v", m)
	}
}

func TestTelephonyCodecStartAndMedia(t *testing.T) {
	c := NewTelephonyCodec("url-call", "", 0)

	in, err := c.Decode([]byte(`{"event":"start","start":{"stream_sid":"MZ1","call_sid":"CA9",
		"custom_parameters":{"from":"+447700900123"},
		"media_format":{"encoding":"audio/x-mulaw","sample_rate":"8000"}}}`))
	if err != nil {
		t.Fatalf("Decode(start) error = %v", err)
	}
	if in.Kind != InInit || in.CallID != "CA9" || in.Phone != "+447700900123" {
		t.Errorf("start = %+v", in)
	}

	payload := base64.StdEncoding.EncodeToString([]byte{0xFF, 0xFF})
	in, err = c.Decode([]byte(`{"event":"media","media":{"payload":"` + payload + `"}}`))
	if err != nil {
		t.Fatalf("Decode(media) error = %v", err)
	}
	if in.Kind != InAudio || len(in.Audio) != 4 {
		t.Errorf("μ-law media should decode to PCM16, got %d bytes", len(in.Audio))
	}

	in, _ = c.Decode([]byte(`{"event":"mark","mark":{"name":"x"}}`))
	if in.Kind != "" {
		t.Errorf("mark should be ignored, got %q", in.Kind)
	}
	in, _ = c.Decode([]byte(`{"event":"stop"}`))
	if in.Kind != InHangup {
		t.Errorf("stop = %q", in.Kind)
	}
}

func TestTelephonyCodecEncode(t *testing.T) {
	c := NewTelephonyCodec("call", "", 8000)
	c.Decode([]byte(`{"event":"start","start":{"stream_sid":"MZ1"}}`))

	frames, err := c.Encode(Outbound{Kind: OutAudio, Audio: make([]byte, 4000)})
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3 of 100 ms or less", len(frames))
	}
	var m struct {
		Event     string `json:"event"`
		StreamSID string `json:"stream_sid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	if err := json.Unmarshal(frames[2], &m); err != nil {
		t.Fatal(err)
	}
	raw, _ := base64.StdEncoding.DecodeString(m.Media.Payload)
	if m.Event != "media" || m.StreamSID != "MZ1" || len(raw) != 800 {
		t.Errorf("last frame = %s/%s %d bytes", m.Event, m.StreamSID, len(raw))
	}

	frames, _ = c.Encode(Outbound{Kind: OutClear})
	if len(frames) != 1 {
		t.Error("clear should send a clear event")
	}
	frames, _ = c.Encode(Outbound{Kind: OutAISpeaking, Speaking: false})
	if len(frames) != 1 {
		t.Error("end of agent speech should send a mark")
	}
	frames, _ = c.Encode(Outbound{Kind: OutTranscript, Text: "hi"})
	if len(frames) != 0 {
		t.Error("transcripts have no telephony frame")
	}
}

func TestCodecsIgnoreUnsupportedRates(t *testing.T) {
	tests := []struct {
		name string
		rate string
		want int
	}{
		{"one hertz", "1", 24000},
		{"odd ratio", "11025", 24000},
		{"huge", "100000000", 24000},
		{"negative", "-8000", 24000},
		{"wideband", "16000", 16000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewWebCodec()
			in, err := c.Decode([]byte(`{"type":"init","sample_rate":` + tt.rate + `}`))
			if err != nil || in.Kind != InInit {
				t.Fatalf("Decode(init) = %+v, %v", in, err)
			}
			if c.SampleRate() != tt.want {
				t.Errorf("SampleRate() = %d, want %d", c.SampleRate(), tt.want)
			}
		})
	}

	if got := NewTelephonyCodec("c", "", 1).SampleRate(); got != 8000 {
		t.Errorf("NewTelephonyCodec(rate 1).SampleRate() = %d, want 8000", got)
	}
	c := NewTelephonyCodec("c", "", 8000)
	c.Decode([]byte(`{"event":"start","start":{"media_format":{"sample_rate":"3"}}}`))
	if c.SampleRate() != 8000 {
		t.Errorf("start with rate 3 changed SampleRate() to %d", c.SampleRate())
	}

	// A chunk from a caller that asked for a tiny rate still grows by at
	// most the model ratio.
	out := toModelAudio(make([]byte, 3200), NewTelephonyCodec("c", "", 1).SampleRate())
	if len(out) > 3200*3 {
		t.Errorf("toModelAudio grew 3200 bytes to %d", len(out))
	}
}

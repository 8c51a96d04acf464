package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/troikatech/cab-voice-agent/pkg/audio"
)

// Codec maps one wire protocol onto caller messages. Decode runs on the
// transport's read goroutine and Encode on the session loop.
type Codec interface {
	Decode(data []byte) (Inbound, error)
	// Encode returns the frames for msg, or none when the protocol has no
	// equivalent.
	Encode(msg Outbound) ([][]byte, error)
	SampleRate() int
}

// WebCodec speaks the JSON message kinds of the web client directly.
type WebCodec struct {
	mu   sync.Mutex
	rate int
}

func NewWebCodec() *WebCodec {
	return &WebCodec{rate: audio.ModelRate}
}

type webInbound struct {
	Type       string `json:"type"`
	CallID     string `json:"call_id"`
	Phone      string `json:"phone"`
	Locale     string `json:"locale"`
	SampleRate int    `json:"sample_rate"`
	Audio      string `json:"audio"`
	Text       string `json:"text"`
}

func (c *WebCodec) Decode(data []byte) (Inbound, error) {
	var m webInbound
	if err := json.Unmarshal(data, &m); err != nil {
		return Inbound{}, fmt.Errorf("malformed message: %w", err)
	}
	in := Inbound{Kind: m.Type}
	switch m.Type {
	case InInit:
		in.CallID, in.Phone, in.Locale = m.CallID, m.Phone, m.Locale
		// Unsupported rates keep the default.
		if audio.SupportedRate(m.SampleRate) {
			c.mu.Lock()
			c.rate = m.SampleRate
			c.mu.Unlock()
		}
	case InAudio:
		pcm, err := base64.StdEncoding.DecodeString(m.Audio)
		if err != nil {
			return Inbound{}, fmt.Errorf("malformed audio payload: %w", err)
		}
		in.Audio = pcm
	case InText:
		in.Text = m.Text
	case InCommit, InHangup:
	default:
		return Inbound{}, fmt.Errorf("unknown message type %q", m.Type)
	}
	return in, nil
}

func (c *WebCodec) Encode(msg Outbound) ([][]byte, error) {
	out := map[string]interface{}{"type": msg.Kind}
	switch msg.Kind {
	case OutClear:
		return nil, nil
	case OutSessionReady:
		out["call_id"] = msg.CallID
	case OutAudio:
		out["audio"] = base64.StdEncoding.EncodeToString(msg.Audio)
	case OutTranscript:
		out["role"] = msg.Role
		out["text"] = msg.Text
	case OutUserSpeaking, OutAISpeaking:
		out["speaking"] = msg.Speaking
	case OutBookingConfirmed, OutBookingCancelled, OutBookingModified:
		out["booking"] = msg.Booking
	case OutCallEnded:
		out["reason"] = msg.Reason
	case OutError:
		out["error"] = msg.Error
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

func (c *WebCodec) SampleRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// TelephonyCodec speaks the voicebot streaming protocol: start, media, stop,
// mark and clear JSON events carrying base64 audio.
type TelephonyCodec struct {
	mu        sync.Mutex
	callID    string
	from      string
	streamSID string
	rate      int
	mulaw     bool
}

// NewTelephonyCodec takes the call identity from the websocket URL; the
// start event may refine it.
func NewTelephonyCodec(callID, from string, rate int) *TelephonyCodec {
	if !audio.SupportedRate(rate) {
		rate = audio.TelephonyRate
	}
	return &TelephonyCodec{callID: callID, from: from, rate: rate}
}

// mediaFrameBytes is 100 ms of 8 kHz PCM16.
const mediaFrameBytes = 1600

type telephonyEvent struct {
	Event     string `json:"event"`
	StreamSID string `json:"stream_sid"`
	Start     *struct {
		StreamSID   string                 `json:"stream_sid"`
		CallSID     string                 `json:"call_sid"`
		From        string                 `json:"from"`
		Custom      map[string]interface{} `json:"custom_parameters"`
		MediaFormat struct {
			Encoding   string      `json:"encoding"`
			SampleRate interface{} `json:"sample_rate"`
		} `json:"media_format"`
	} `json:"start"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

func (c *TelephonyCodec) Decode(data []byte) (Inbound, error) {
	var ev telephonyEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return Inbound{}, fmt.Errorf("malformed event: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.StreamSID != "" {
		c.streamSID = ev.StreamSID
	}

	switch ev.Event {
	case "start":
		if ev.Start != nil {
			if ev.Start.StreamSID != "" {
				c.streamSID = ev.Start.StreamSID
			}
			if ev.Start.CallSID != "" {
				c.callID = ev.Start.CallSID
			}
			if ev.Start.From != "" {
				c.from = ev.Start.From
			} else if from, ok := ev.Start.Custom["from"].(string); ok && from != "" {
				c.from = from
			}
			enc := strings.ToLower(ev.Start.MediaFormat.Encoding)
			c.mulaw = strings.Contains(enc, "mulaw") || strings.Contains(enc, "ulaw")
			if r := parseRate(ev.Start.MediaFormat.SampleRate); audio.SupportedRate(r) {
				c.rate = r
			}
		}
		return Inbound{Kind: InInit, CallID: c.callID, Phone: c.from}, nil
	case "media":
		if ev.Media == nil {
			return Inbound{}, fmt.Errorf("media event without payload")
		}
		raw, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
		if err != nil {
			return Inbound{}, fmt.Errorf("malformed media payload: %w", err)
		}
		if c.mulaw {
			raw = audio.DecodeMuLaw(raw)
		}
		return Inbound{Kind: InAudio, Audio: raw}, nil
	case "stop":
		return Inbound{Kind: InHangup}, nil
	}
	// connected, mark, dtmf: nothing for the session.
	return Inbound{}, nil
}

func parseRate(v interface{}) int {
	switch r := v.(type) {
	case float64:
		return int(r)
	case string:
		n, _ := strconv.Atoi(r)
		return n
	}
	return 0
}

func (c *TelephonyCodec) Encode(msg Outbound) ([][]byte, error) {
	c.mu.Lock()
	sid, mulaw, rate := c.streamSID, c.mulaw, c.rate
	c.mu.Unlock()

	switch msg.Kind {
	case OutAudio:
		var frames [][]byte
		for _, chunk := range audio.Chunk(msg.Audio, mediaFrameBytes*rate/audio.TelephonyRate) {
			if mulaw {
				chunk = audio.EncodeMuLaw(chunk)
			}
			data, err := json.Marshal(map[string]interface{}{
				"event":      "media",
				"stream_sid": sid,
				"media":      map[string]string{"payload": base64.StdEncoding.EncodeToString(chunk)},
			})
			if err != nil {
				return nil, err
			}
			frames = append(frames, data)
		}
		return frames, nil
	case OutClear:
		data, err := json.Marshal(map[string]string{"event": "clear", "stream_sid": sid})
		return [][]byte{data}, err
	case OutAISpeaking:
		if msg.Speaking {
			return nil, nil
		}
		data, err := json.Marshal(map[string]interface{}{
			"event":      "mark",
			"stream_sid": sid,
			"mark":       map[string]string{"name": "response-end"},
		})
		return [][]byte{data}, err
	}
	return nil, nil
}

func (c *TelephonyCodec) SampleRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

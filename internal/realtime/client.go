// Package realtime is the model-facing transport: a websocket to a realtime
// speech model speaking the OpenAI Realtime event protocol.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	eventBuffer  = 256
)

// ErrClosed is returned by sends after the connection has gone away.
var ErrClosed = errors.New("realtime connection closed")

type Config struct {
	URL    string
	Model  string
	APIKey string
}

// Conn is one model connection. Sends are safe from any goroutine; events
// are delivered in arrival order on Events.
type Conn struct {
	ws     *websocket.Conn
	log    *zap.Logger
	events chan Event

	writeMu sync.Mutex

	mu        sync.Mutex
	err       error
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens the socket and sends the session configuration.
func Dial(ctx context.Context, cfg Config, session SessionConfig, log *zap.Logger) (*Conn, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("realtime API key not configured")
	}

	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	if cfg.Model != "" {
		q := endpoint.Query()
		q.Set("model", cfg.Model)
		endpoint.RawQuery = q.Encode()
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: writeWait}
	ws, resp, err := dialer.DialContext(ctx, endpoint.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime dial failed: %w", err)
	}

	c := newConn(ws, log)
	if err := c.send(session.payload()); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to configure realtime session: %w", err)
	}
	return c, nil
}

func newConn(ws *websocket.Conn, log *zap.Logger) *Conn {
	c := &Conn{
		ws:     ws,
		log:    log,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()
	return c
}

// Events yields server events until the connection ends, then closes.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Err reports why the connection ended; nil for a normal close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closed
			c.mu.Unlock()
			if !closing && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.setErr(err)
				c.log.Warn("Realtime connection lost", zap.Error(err))
			}
			c.shutdown()
			return
		}

		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			c.log.Warn("Failed to parse realtime event", zap.Error(err))
			continue
		}
		ev.Type = canonicalType(ev.Type)

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.log.Warn("Failed to send realtime ping", zap.Error(err))
				return
			}
		}
	}
}

func (c *Conn) setErr(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		c.ws.Close()
	})
}

func (c *Conn) send(v interface{}) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode realtime event: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("realtime write failed: %w", err)
	}
	return nil
}

// AppendAudio streams PCM16 24 kHz caller audio into the input buffer.
func (c *Conn) AppendAudio(pcm []byte) error {
	return c.send(map[string]interface{}{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

// CommitAudio ends the caller's turn manually.
func (c *Conn) CommitAudio() error {
	return c.send(map[string]interface{}{"type": "input_audio_buffer.commit"})
}

// SendUserText adds a typed caller message to the conversation.
func (c *Conn) SendUserText(text string) error {
	return c.send(map[string]interface{}{
		"type": "conversation.item.create",
		"item": map[string]interface{}{
			"type": "message",
			"role": "user",
			"content": []map[string]interface{}{
				{"type": "input_text", "text": text},
			},
		},
	})
}

// SendFunctionOutput returns a tool result to the model. It does not
// request a response.
func (c *Conn) SendFunctionOutput(callID string, output interface{}) error {
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to encode function output: %w", err)
	}
	return c.send(map[string]interface{}{
		"type": "conversation.item.create",
		"item": map[string]interface{}{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  string(data),
		},
	})
}

// CreateResponse asks the model to respond. Instructions, when set, apply
// to this response only.
func (c *Conn) CreateResponse(instructions string) error {
	ev := map[string]interface{}{"type": "response.create"}
	if instructions != "" {
		ev["response"] = map[string]interface{}{"instructions": instructions}
	}
	return c.send(ev)
}

func (c *Conn) CancelResponse() error {
	return c.send(map[string]interface{}{"type": "response.cancel"})
}

// Close sends a normal close frame and tears the socket down.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.shutdown()
	return nil
}

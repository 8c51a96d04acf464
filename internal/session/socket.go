package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	// maxFrameBytes bounds one caller frame; a second of 48 kHz audio in
	// base64 fits well inside it.
	maxFrameBytes = 256 << 10
)

// SocketCaller is a Caller over a websocket.
type SocketCaller struct {
	conn  *websocket.Conn
	codec Codec
	log   *zap.Logger

	mu     sync.Mutex
	closed bool
}

func NewSocketCaller(conn *websocket.Conn, codec Codec, log *zap.Logger) *SocketCaller {
	return &SocketCaller{conn: conn, codec: codec, log: log}
}

func (c *SocketCaller) SampleRate() int { return c.codec.SampleRate() }

func (c *SocketCaller) Send(msg Outbound) error {
	frames, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	for _, frame := range frames {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return err
		}
	}
	return nil
}

func (c *SocketCaller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// Pump reads caller frames until the socket closes and delivers decoded
// messages on out, which it closes on return. Malformed frames are logged
// and skipped. Pump also returns once stop is closed.
func (c *SocketCaller) Pump(out chan<- Inbound, stop <-chan struct{}) {
	defer close(out)

	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				c.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Caller websocket read error", zap.Error(err))
			}
			return
		}
		// Any frame proves the peer is alive, media streams included.
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType != websocket.TextMessage {
			continue
		}

		in, err := c.codec.Decode(data)
		if err != nil {
			c.log.Warn("Ignoring malformed caller message", zap.Error(err))
			continue
		}
		if in.Kind == "" {
			continue
		}
		select {
		case out <- in:
		case <-stop:
			return
		}
	}
}

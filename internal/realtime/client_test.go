package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type fakeServer struct {
	auth     chan string
	model    chan string
	received chan map[string]interface{}
	send     chan string
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{
		auth:     make(chan string, 1),
		model:    make(chan string, 1),
		received: make(chan map[string]interface{}, 16),
		send:     make(chan string, 16),
	}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.auth <- r.Header.Get("Authorization")
		fs.model <- r.URL.Query().Get("model")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for msg := range fs.send {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
			}
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev map[string]interface{}
			if err := json.Unmarshal(data, &ev); err == nil {
				fs.received <- ev
			}
		}
	}))
	t.Cleanup(srv.Close)
	return fs, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func next(t *testing.T, ch chan map[string]interface{}) map[string]interface{} {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client event")
		return nil
	}
}

func TestDialConfiguresSession(t *testing.T) {
	fs, srv := newFakeServer(t)

	conn, err := Dial(context.Background(),
		Config{URL: wsURL(srv), Model: "rt-model", APIKey: "sk-test"},
		SessionConfig{Instructions: "be brief", Voice: "alloy", VADThreshold: 0.5, VADSilenceMs: 600},
		zap.NewNop())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if got := <-fs.auth; got != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got)
	}
	if got := <-fs.model; got != "rt-model" {
		t.Errorf("model = %q", got)
	}

	ev := next(t, fs.received)
	if ev["type"] != "session.update" {
		t.Fatalf("first event = %v, want session.update", ev["type"])
	}
	session := ev["session"].(map[string]interface{})
	td := session["turn_detection"].(map[string]interface{})
	if td["create_response"] != false || td["interrupt_response"] != false {
		t.Errorf("turn detection must not create or interrupt responses: %v", td)
	}
}

func TestDialRequiresAPIKey(t *testing.T) {
	if _, err := Dial(context.Background(), Config{URL: "ws://unused"}, SessionConfig{}, zap.NewNop()); err == nil {
		t.Fatal("Dial() without key should fail")
	}
}

func TestSendsAndEvents(t *testing.T) {
	fs, srv := newFakeServer(t)
	conn, err := Dial(context.Background(), Config{URL: wsURL(srv), APIKey: "k"}, SessionConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	next(t, fs.received) // session.update

	if err := conn.AppendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("AppendAudio() error = %v", err)
	}
	ev := next(t, fs.received)
	if ev["type"] != "input_audio_buffer.append" {
		t.Errorf("type = %v", ev["type"])
	}
	if ev["audio"] != base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) {
		t.Errorf("audio = %v", ev["audio"])
	}

	if err := conn.SendFunctionOutput("call_1", map[string]bool{"success": true}); err != nil {
		t.Fatalf("SendFunctionOutput() error = %v", err)
	}
	ev = next(t, fs.received)
	item := ev["item"].(map[string]interface{})
	if item["call_id"] != "call_1" || item["output"] != `{"success":true}` {
		t.Errorf("item = %v", item)
	}

	if err := conn.CreateResponse("ask about luggage"); err != nil {
		t.Fatalf("CreateResponse() error = %v", err)
	}
	ev = next(t, fs.received)
	resp := ev["response"].(map[string]interface{})
	if resp["instructions"] != "ask about luggage" {
		t.Errorf("instructions = %v", resp["instructions"])
	}

	fs.send <- `{"type":"response.output_audio.delta","delta":"AAA="}`
	fs.send <- `not json`
	fs.send <- `{"type":"input_audio_buffer.committed","item_id":"item_9"}`

	select {
	case got := <-conn.Events():
		if got.Type != EventAudioDelta || got.Delta != "AAA=" {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	select {
	case got := <-conn.Events():
		if got.Type != EventBufferCommitted || got.ItemID != "item_9" {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
}

func TestCloseEndsEvents(t *testing.T) {
	fs, srv := newFakeServer(t)
	conn, err := Dial(context.Background(), Config{URL: wsURL(srv), APIKey: "k"}, SessionConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	next(t, fs.received)

	conn.Close()
	select {
	case _, ok := <-conn.Events():
		if ok {
			t.Fatal("unexpected event after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
	if conn.Err() != nil {
		t.Errorf("Err() after Close = %v, want nil", conn.Err())
	}
	if err := conn.CancelResponse(); err != ErrClosed {
		t.Errorf("send after close = %v, want ErrClosed", err)
	}
}

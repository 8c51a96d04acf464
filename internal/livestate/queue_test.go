package livestate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/pkg/metrics"
)

type recordingSink struct {
	mu      sync.Mutex
	written []Snapshot
	release chan struct{}
	fail    bool
}

func (s *recordingSink) Write(ctx context.Context, snap Snapshot) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, snap)
	if s.fail {
		return errors.New("redis down")
	}
	return nil
}

func (s *recordingSink) phases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.written))
	for i, w := range s.written {
		out[i] = w.Phase
	}
	return out
}

func TestQueuePreservesOrder(t *testing.T) {
	sink := &recordingSink{release: make(chan struct{})}
	q := NewQueue(sink, time.Second, zap.NewNop())

	want := []string{"connecting", "greeting", "collecting", "confirming", "booked"}
	for _, p := range want {
		q.Publish(Snapshot{CallID: "c1", Phase: p})
	}
	// Publish returned while the first write is still blocked.
	close(sink.release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q.Close(ctx)

	got := sink.phases()
	if len(got) != len(want) {
		t.Fatalf("wrote %d snapshots, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d = %q, want %q", i, got[i], want[i])
		}
	}
	for i, s := range sink.written {
		if s.Seq != int64(i+1) {
			t.Errorf("write %d seq = %d", i, s.Seq)
		}
	}
}

func TestQueueContinuesAfterFailure(t *testing.T) {
	before := metrics.Count(metrics.BroadcastFailures, "redis")
	sink := &recordingSink{fail: true}
	q := NewQueue(sink, time.Second, zap.NewNop())

	q.Publish(Snapshot{CallID: "c2", Phase: "greeting"})
	q.Publish(Snapshot{CallID: "c2", Phase: "collecting"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q.Close(ctx)

	if n := len(sink.phases()); n != 2 {
		t.Fatalf("wrote %d snapshots, want 2", n)
	}
	if got := metrics.Count(metrics.BroadcastFailures, "redis") - before; got != 2 {
		t.Errorf("failures counted = %d, want 2", got)
	}
}

func TestPublishAfterCloseDropped(t *testing.T) {
	sink := &recordingSink{}
	q := NewQueue(sink, time.Second, zap.NewNop())
	q.Close(context.Background())
	q.Publish(Snapshot{CallID: "c3", Phase: "ended"})

	time.Sleep(10 * time.Millisecond)
	if n := len(sink.phases()); n != 0 {
		t.Errorf("wrote %d snapshots after close", n)
	}
}

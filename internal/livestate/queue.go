// Package livestate publishes per-session snapshots to observers. Writes for
// one session go through a single ordered queue so observers never see an
// older snapshot after a newer one.
package livestate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/pkg/metrics"
)

// Snapshot is the observable state of one session.
type Snapshot struct {
	CallID     string      `json:"call_id"`
	Channel    string      `json:"channel"`
	Phase      string      `json:"phase"`
	Caller     string      `json:"caller,omitempty"`
	Booking    interface{} `json:"booking,omitempty"`
	Pending    []string    `json:"pending_areas,omitempty"`
	Transcript []Line      `json:"transcript,omitempty"`
	Seq        int64       `json:"seq"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Line is one accepted utterance.
type Line struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Sink stores and fans out snapshots.
type Sink interface {
	Write(ctx context.Context, s Snapshot) error
}

// Queue serializes writes for one session. Publish never blocks the caller.
type Queue struct {
	sink    Sink
	timeout time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	pending []Snapshot
	seq     int64
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func NewQueue(sink Sink, timeout time.Duration, log *zap.Logger) *Queue {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	q := &Queue{
		sink:    sink,
		timeout: timeout,
		log:     log,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Publish stamps s with the next sequence number and enqueues it.
// Snapshots published after Close are dropped.
func (q *Queue) Publish(s Snapshot) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.seq++
	s.Seq = q.seq
	q.pending = append(q.pending, s)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting snapshots and waits until queued ones are written
// or ctx ends.
func (q *Queue) Close(ctx context.Context) {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()

	select {
	case <-q.done:
	case <-ctx.Done():
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for range q.wake {
		for {
			q.mu.Lock()
			if len(q.pending) == 0 {
				closed := q.closed
				q.mu.Unlock()
				if closed {
					return
				}
				break
			}
			s := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()

			q.write(s)
		}
	}
}

func (q *Queue) write(s Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if err := q.sink.Write(ctx, s); err != nil {
		metrics.Inc(metrics.BroadcastFailures, "redis")
		q.log.Warn("Failed to publish live state",
			zap.String("call_id", s.CallID),
			zap.Int64("seq", s.Seq),
			zap.Error(err),
		)
	}
}

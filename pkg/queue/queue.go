// Package queue carries background jobs (reminder e-mails) between the API
// server and the worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned by MemoryQueue after Close.
var ErrQueueClosed = errors.New("queue closed")

// Message is the envelope every job travels in.
type Message struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewMessage marshals payload into an envelope of the given kind.
func NewMessage(kind string, payload interface{}) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{ID: uuid.NewString(), Kind: kind, Payload: data, EnqueuedAt: time.Now().UTC()}, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// Queue is implemented by SQSClient and MemoryQueue.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
	// Receive returns up to max messages and a receipt per message.
	Receive(ctx context.Context, max int32, waitSeconds int32) ([]Message, []string, error)
	Delete(ctx context.Context, receipt string) error
}

// MemoryQueue is an in-process Queue for single-binary runs and tests.
// Received messages stay invisible until deleted or until Requeue.
type MemoryQueue struct {
	mu       sync.Mutex
	ready    []Message
	inflight map[string]Message
	closed   bool
	notify   chan struct{}
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{inflight: map[string]Message{}, notify: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	q.ready = append(q.ready, msg)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context, max int32, waitSeconds int32) ([]Message, []string, error) {
	if max <= 0 {
		max = 1
	}
	var timer <-chan time.Time
	if waitSeconds > 0 {
		t := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer t.Stop()
		timer = t.C
	}
	for {
		msgs, receipts, err := q.take(int(max))
		if err != nil || len(msgs) > 0 || timer == nil {
			return msgs, receipts, err
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-timer:
			return []Message{}, []string{}, nil
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) take(max int) ([]Message, []string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, nil, ErrQueueClosed
	}
	n := len(q.ready)
	if n > max {
		n = max
	}
	msgs := make([]Message, 0, n)
	receipts := make([]string, 0, n)
	for _, m := range q.ready[:n] {
		receipt := "receipt-" + m.ID
		q.inflight[receipt] = m
		msgs = append(msgs, m)
		receipts = append(receipts, receipt)
	}
	q.ready = q.ready[n:]
	return msgs, receipts, nil
}

func (q *MemoryQueue) Delete(ctx context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, receipt)
	return nil
}

// Requeue makes every received but undeleted message visible again.
func (q *MemoryQueue) Requeue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for receipt, m := range q.inflight {
		q.ready = append(q.ready, m)
		delete(q.inflight, receipt)
	}
}

// Len reports messages waiting to be received.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// Close rejects further operations.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

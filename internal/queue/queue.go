// internal/queue/queue.go
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unclebandit/outreach-backend/internal/logx"
)

// Handler processes one payload. A non-nil error asks for a retry.
type Handler func(ctx context.Context, payload []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue delivers to in-process subscribers with retry.
type InMemoryQueue struct {
	MaxRetries int
	Backoff    time.Duration

	mu       sync.Mutex
	handlers map[string][]Handler
	closed   bool
	wg       sync.WaitGroup
	// stopping ends retry backoffs; ctx is cancelled only once handlers
	// have returned.
	stopping chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &InMemoryQueue{
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
		handlers:   make(map[string][]Handler),
		stopping:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// job wraps a payload with retry info
type job struct {
	topic      string
	payload    []byte
	retryCount int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(_ context.Context, topic string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue closed")
	}
	handlers := q.handlers[topic]
	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, h := range handlers {
		q.wg.Add(1)
		go q.process(h, job{topic: topic, payload: payload})
	}
	return nil
}

// process handles retries with linear backoff
func (q *InMemoryQueue) process(h Handler, j job) {
	defer q.wg.Done()
	for {
		err := h(q.ctx, j.payload)
		if err == nil {
			return
		}

		j.retryCount++
		if j.retryCount > q.MaxRetries {
			logx.L().Errorw("job_permanently_failed", "topic", j.topic, "attempts", j.retryCount, "error", err)
			return
		}
		logx.L().Warnw("job_failed", "topic", j.topic, "attempt", j.retryCount, "max_retries", q.MaxRetries, "error", err)

		select {
		case <-q.stopping:
			logx.L().Warnw("job_retry_abandoned", "topic", j.topic, "attempt", j.retryCount)
			return
		case <-time.After(time.Duration(j.retryCount) * q.Backoff):
		}
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Drain waits for in-flight jobs to finish.
func (q *InMemoryQueue) Drain() {
	q.wg.Wait()
}

// Close refuses new publishes, abandons jobs waiting on a retry and lets
// running handlers finish before their context is cancelled.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.stopping)
	q.mu.Unlock()

	q.Drain()
	q.cancel()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)

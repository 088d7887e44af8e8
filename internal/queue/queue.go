package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Handler processes one message body. A non-nil error asks the queue to
// deliver the message again.
type Handler func(ctx context.Context, body []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue delivers messages to in-process subscribers with retry.
// It is used when no broker URL is configured.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	wg       sync.WaitGroup

	MaxRetries int
	Backoff    func(attempt int) time.Duration
	Logger     *log.Logger
}

func NewInMemoryQueue(logger *log.Logger) *InMemoryQueue {
	if logger == nil {
		logger = log.Default()
	}
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		MaxRetries: 3,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*500) * time.Millisecond
		},
		Logger: logger,
	}
}

type job struct {
	topic      string
	body       []byte
	retryCount int
}

// Publish hands body to every subscriber of topic.
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, body []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, h := range handlers {
		q.wg.Add(1)
		go q.process(context.WithoutCancel(ctx), h, job{topic: topic, body: body})
	}
	return nil
}

func (q *InMemoryQueue) process(ctx context.Context, h Handler, j job) {
	defer q.wg.Done()
	for {
		err := h(ctx, j.body)
		if err == nil {
			return
		}

		j.retryCount++
		q.Logger.Printf("%s: job failed (attempt %d/%d): %v", j.topic, j.retryCount, q.MaxRetries, err)
		if j.retryCount > q.MaxRetries {
			q.Logger.Printf("%s: job dropped after %d retries", j.topic, q.MaxRetries)
			return
		}
		time.Sleep(q.Backoff(j.retryCount))
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished or been dropped.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

package queue

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/crm-sms-fallback/internal/service"
)

func newTestQueue() *InMemoryQueue {
	q := NewInMemoryQueue(log.New(io.Discard, "", 0))
	q.Backoff = func(int) time.Duration { return 0 }
	return q
}

func TestPublishWithoutSubscribers(t *testing.T) {
	q := newTestQueue()
	err := q.Publish(context.Background(), "nobody", []byte("{}"))
	assert.EqualError(t, err, "no subscribers for topic nobody")
}

func TestPublishRetriesUntilSuccess(t *testing.T) {
	q := newTestQueue()
	var mu sync.Mutex
	attempts := 0
	require.NoError(t, q.Subscribe("jobs", func(ctx context.Context, body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, q.Publish(context.Background(), "jobs", []byte("x")))
	q.Wait()
	assert.Equal(t, 3, attempts)
}

func TestPublishDropsAfterMaxRetries(t *testing.T) {
	q := newTestQueue()
	q.MaxRetries = 2
	var mu sync.Mutex
	attempts := 0
	require.NoError(t, q.Subscribe("jobs", func(ctx context.Context, body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return errors.New("permanent")
	}))

	require.NoError(t, q.Publish(context.Background(), "jobs", []byte("x")))
	q.Wait()
	assert.Equal(t, 3, attempts)
}

type countingRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRunner) Run(ctx context.Context) (*service.RunReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &service.RunReport{RunID: "run-1", Success: true}, nil
}

func TestFallbackRunSubscriberRunsDispatcher(t *testing.T) {
	q := newTestQueue()
	runner := &countingRunner{}
	require.NoError(t, StartFallbackRunSubscriber(q, "sms_fallback_runs", runner, log.New(io.Discard, "", 0)))

	req, err := EnqueueFallbackRun(context.Background(), q, "sms_fallback_runs", "cron")
	require.NoError(t, err)
	q.Wait()

	assert.NotEmpty(t, req.RequestID)
	assert.Equal(t, "cron", req.Source)
	assert.Equal(t, 1, runner.calls)
}

func TestFallbackRunSubscriberRetriesFailedRun(t *testing.T) {
	q := newTestQueue()
	q.MaxRetries = 1
	runner := &countingRunner{err: errors.New("settings unavailable")}
	require.NoError(t, StartFallbackRunSubscriber(q, "sms_fallback_runs", runner, log.New(io.Discard, "", 0)))

	_, err := EnqueueFallbackRun(context.Background(), q, "sms_fallback_runs", "api")
	require.NoError(t, err)
	q.Wait()

	assert.Equal(t, 2, runner.calls)
}

func TestFallbackRunSubscriberDropsMalformedBody(t *testing.T) {
	q := newTestQueue()
	runner := &countingRunner{}
	require.NoError(t, StartFallbackRunSubscriber(q, "sms_fallback_runs", runner, log.New(io.Discard, "", 0)))

	require.NoError(t, q.Publish(context.Background(), "sms_fallback_runs", []byte("not json")))
	q.Wait()

	assert.Equal(t, 0, runner.calls)
}

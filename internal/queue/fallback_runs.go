package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/unclebandit/crm-sms-fallback/internal/service"
)

// FallbackRunRequest is the job body published to the fallback run topic.
type FallbackRunRequest struct {
	RequestID   string    `json:"request_id"`
	Source      string    `json:"source"`
	RequestedAt time.Time `json:"requested_at"`
}

// FallbackRunner is satisfied by *service.FallbackDispatcher.
type FallbackRunner interface {
	Run(ctx context.Context) (*service.RunReport, error)
}

// EnqueueFallbackRun publishes a run request and returns it.
func EnqueueFallbackRun(ctx context.Context, q Queue, topic, source string) (FallbackRunRequest, error) {
	req := FallbackRunRequest{
		RequestID:   uuid.NewString(),
		Source:      source,
		RequestedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return req, errors.Wrap(err, "marshal run request")
	}
	if err := q.Publish(ctx, topic, body); err != nil {
		return req, err
	}
	return req, nil
}

// StartFallbackRunSubscriber runs the dispatcher once per request on topic.
// Malformed bodies are dropped; a failed run is retried by the queue.
func StartFallbackRunSubscriber(q Queue, topic string, runner FallbackRunner, logger *log.Logger) error {
	return q.Subscribe(topic, func(ctx context.Context, body []byte) error {
		var req FallbackRunRequest
		if err := json.Unmarshal(body, &req); err != nil {
			logger.Printf("invalid fallback run request %q: %v", body, err)
			return nil
		}

		logger.Printf("fallback run requested by %s (request %s)", req.Source, req.RequestID)
		report, err := runner.Run(ctx)
		if err != nil {
			logger.Printf("fallback run for request %s failed: %v", req.RequestID, err)
			return err
		}
		logger.Printf("fallback run %s for request %s done: processed=%d reason=%q",
			report.RunID, req.RequestID, report.Processed, report.Reason)
		return nil
	})
}

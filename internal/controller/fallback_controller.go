// internal/controller/fallback_controller.go
package controller

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/crm-sms-fallback/internal/queue"
	"github.com/unclebandit/crm-sms-fallback/internal/service"
)

type FallbackController struct {
	Runner queue.FallbackRunner
	Gate   *service.PauseGate
	Queue  queue.Queue
	Topic  string
	Logger *log.Logger
}

// Routes mounts the fallback endpoints under the caller's prefix.
func (c *FallbackController) Routes(r chi.Router) {
	r.Post("/", c.RunFallback)
	r.Post("/enqueue", c.EnqueueFallbackRun)
	r.Post("/pause", c.Pause)
	r.Post("/resume", c.Resume)
	r.Get("/state", c.State)
}

// RunFallback executes one dispatcher pass synchronously and returns its
// report. The pass outlives a disconnecting caller.
func (c *FallbackController) RunFallback(w http.ResponseWriter, r *http.Request) {
	report, err := c.Runner.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		c.Logger.Printf("fallback run failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// EnqueueFallbackRun publishes a run request for the worker.
func (c *FallbackController) EnqueueFallbackRun(w http.ResponseWriter, r *http.Request) {
	req, err := queue.EnqueueFallbackRun(r.Context(), c.Queue, c.Topic, "api")
	if err != nil {
		c.Logger.Printf("enqueue fallback run: %v", err)
		http.Error(w, "failed to enqueue fallback run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

func (c *FallbackController) Pause(w http.ResponseWriter, r *http.Request) {
	c.Gate.Pause()
	c.Logger.Println("fallback dispatcher paused")
	c.State(w, r)
}

func (c *FallbackController) Resume(w http.ResponseWriter, r *http.Request) {
	c.Gate.Resume()
	c.Logger.Println("fallback dispatcher resumed")
	c.State(w, r)
}

func (c *FallbackController) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"paused": c.Gate.Paused()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

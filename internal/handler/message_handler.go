// internal/handler/message_handler.go
package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/crm-sms-fallback/internal/errors"
	"github.com/unclebandit/crm-sms-fallback/internal/model"
)

type MessageGetter interface {
	GetByID(ctx context.Context, id string) (*model.OutboundMessage, error)
}

// MessageHandler exposes SMS rows so operators can inspect the fallback
// state and retry history of a single message.
type MessageHandler struct {
	Repo   MessageGetter
	Logger *log.Logger
}

func NewMessageHandler(repo MessageGetter, logger *log.Logger) *MessageHandler {
	return &MessageHandler{Repo: repo, Logger: logger}
}

// GetSMSHandler returns one SMS message by id
func (h *MessageHandler) GetSMSHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing message id", http.StatusBadRequest)
		return
	}

	msg, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		if appErrors.IsMessageNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.Logger.Printf("get sms %s: %v", id, err)
		http.Error(w, "failed to load message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msg)
}

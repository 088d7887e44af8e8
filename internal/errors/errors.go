// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrSettingsNotFound is returned when integrations_settings has no row.
var ErrSettingsNotFound = errors.New("integration settings not found")

// ErrMessageNotFound is returned when a message id does not exist
type ErrMessageNotFound struct {
	MessageID string
}

func (e *ErrMessageNotFound) Error() string {
	return fmt.Sprintf("message with ID %s not found", e.MessageID)
}

// Helper constructor
func NewMessageNotFound(id string) error {
	return &ErrMessageNotFound{MessageID: id}
}

// IsMessageNotFound reports whether err wraps an ErrMessageNotFound.
func IsMessageNotFound(err error) bool {
	var target *ErrMessageNotFound
	return errors.As(err, &target)
}

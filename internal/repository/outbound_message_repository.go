package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/crm-sms-fallback/internal/errors"
	"github.com/unclebandit/crm-sms-fallback/internal/model"
)

// Retry budgets after which a failed SMS becomes a fallback candidate.
const (
	VerificationRetryThreshold = 6
	AffiliateRetryThreshold    = 3
)

// SMSMessageRepository reads and updates rows of sms_messages. Every write
// here is conditional on the current status so that overlapping dispatcher
// runs never clobber each other.
type SMSMessageRepository struct {
	DB *sql.DB
}

const smsColumns = `id, phone, message, status, retry_count, max_retries, retry_history,
	contact_id, leader_id, error_message, created_at, updated_at, sent_at, delivered_at`

// The marker filter is coarse; callers reclassify every row.
const fallbackCandidatesQuery = `
	SELECT ` + smsColumns + `
	FROM sms_messages
	WHERE status = 'failed'
	  AND (
	    (retry_count >= $1 AND (
	      message ILIKE '%verificar-lider%' OR message ILIKE '%verificar-contato%'
	      OR message ILIKE '%código%' OR message ILIKE '%codigo%'))
	    OR
	    (retry_count >= $2 AND (
	      message ILIKE '%/cadastro/%' OR message ILIKE '%link de indica%'))
	  )
	ORDER BY created_at ASC
	LIMIT $3
`

// ListFallbackCandidates returns failed SMS messages past their retry
// budget, oldest first.
func (r *SMSMessageRepository) ListFallbackCandidates(ctx context.Context, limit int) ([]*model.OutboundMessage, error) {
	rows, err := r.DB.QueryContext(ctx, fallbackCandidatesQuery,
		VerificationRetryThreshold, AffiliateRetryThreshold, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query fallback candidates")
	}
	defer rows.Close()

	msgs := []*model.OutboundMessage{}
	for rows.Next() {
		msg, err := scanSMS(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan fallback candidate")
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate fallback candidates")
	}
	return msgs, nil
}

// LockForFallback moves a message from failed to processing_fallback.
// It returns false when another run changed the row first.
func (r *SMSMessageRepository) LockForFallback(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE sms_messages SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		model.StatusProcessingFallback, time.Now(), id, model.StatusFailed)
	if err != nil {
		return false, errors.Wrapf(err, "lock sms message %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "lock sms message %s", id)
	}
	return n == 1, nil
}

// MarkFallbackSent records a successful WhatsApp delivery of a locked message.
func (r *SMSMessageRepository) MarkFallbackSent(ctx context.Context, id, note string, entry model.RetryEntry) error {
	history, err := json.Marshal([]model.RetryEntry{entry})
	if err != nil {
		return errors.Wrap(err, "encode retry history entry")
	}
	_, err = r.DB.ExecContext(ctx,
		`UPDATE sms_messages
		 SET status = $1, error_message = $2,
		     retry_history = COALESCE(retry_history, '[]'::jsonb) || $3::jsonb,
		     updated_at = $4
		 WHERE id = $5 AND status = $6`,
		model.StatusFallbackWhatsApp, note, string(history), time.Now(), id, model.StatusProcessingFallback)
	return errors.Wrapf(err, "mark sms message %s as fallback_whatsapp", id)
}

// RevertFallback puts a locked message back to failed so a later run can
// try the fallback again.
func (r *SMSMessageRepository) RevertFallback(ctx context.Context, id, reason string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE sms_messages SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		model.StatusFailed, reason, time.Now(), id, model.StatusProcessingFallback)
	return errors.Wrapf(err, "revert sms message %s", id)
}

// GetByID fetches an SMS message by its ID
func (r *SMSMessageRepository) GetByID(ctx context.Context, id string) (*model.OutboundMessage, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+smsColumns+` FROM sms_messages WHERE id = $1`, id)
	msg, err := scanSMS(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewMessageNotFound(id)
		}
		return nil, errors.Wrapf(err, "get sms message %s", id)
	}
	return msg, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSMS(s scanner) (*model.OutboundMessage, error) {
	msg := &model.OutboundMessage{Channel: model.ChannelSMS}
	err := s.Scan(
		&msg.ID,
		&msg.Phone,
		&msg.Message,
		&msg.Status,
		&msg.RetryCount,
		&msg.MaxRetries,
		&msg.RetryHistory,
		&msg.ContactID,
		&msg.LeaderID,
		&msg.ErrorMessage,
		&msg.CreatedAt,
		&msg.UpdatedAt,
		&msg.SentAt,
		&msg.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}
	if !msg.Status.Valid() {
		return nil, errors.Errorf("sms message %s has unknown status %q", msg.ID, msg.Status)
	}
	return msg, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/crm-sms-fallback/internal/errors"
	"github.com/unclebandit/crm-sms-fallback/internal/model"
)

var smsColumnNames = []string{
	"id", "phone", "message", "status", "retry_count", "max_retries", "retry_history",
	"contact_id", "leader_id", "error_message", "created_at", "updated_at", "sent_at", "delivered_at",
}

func newSMSRepo(t *testing.T) (*SMSMessageRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return &SMSMessageRepository{DB: db}, mock, func() { db.Close() }
}

func TestListFallbackCandidates(t *testing.T) {
	repo, mock, done := newSMSRepo(t)
	defer done()

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(smsColumnNames).
		AddRow("m1", "+5561999998888", "Seu código: AB12C", "failed", 6, 6,
			`[{"attempt":1,"status":"failed","timestamp":"2025-03-01T12:00:00Z"}]`,
			"c1", nil, "timeout", created, created, nil, nil).
		AddRow("m2", "+5561988887777", "https://x.com/cadastro/tok", "failed", 3, 3,
			nil, nil, "l1", nil, created, created, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM sms_messages WHERE status = 'failed'`)).
		WithArgs(VerificationRetryThreshold, AffiliateRetryThreshold, 50).
		WillReturnRows(rows)

	msgs, err := repo.ListFallbackCandidates(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, model.ChannelSMS, msgs[0].Channel)
	assert.Equal(t, model.StatusFailed, msgs[0].Status)
	assert.Equal(t, 6, msgs[0].RetryCount)
	require.Len(t, msgs[0].RetryHistory, 1)
	assert.Equal(t, "failed", msgs[0].RetryHistory[0].Status)
	require.NotNil(t, msgs[0].ContactID)
	assert.Equal(t, "c1", *msgs[0].ContactID)
	assert.Nil(t, msgs[0].LeaderID)

	assert.Equal(t, "m2", msgs[1].ID)
	assert.Nil(t, msgs[1].RetryHistory)
	assert.Nil(t, msgs[1].ErrorMessage)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListFallbackCandidatesQueryError(t *testing.T) {
	repo, mock, done := newSMSRepo(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM sms_messages`)).WillReturnError(errors.New("connection reset"))

	_, err := repo.ListFallbackCandidates(context.Background(), 50)
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockForFallback(t *testing.T) {
	repo, mock, done := newSMSRepo(t)
	defer done()

	lockSQL := regexp.QuoteMeta(`UPDATE sms_messages SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`)
	mock.ExpectExec(lockSQL).
		WithArgs(model.StatusProcessingFallback, sqlmock.AnyArg(), "m1", model.StatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(lockSQL).
		WithArgs(model.StatusProcessingFallback, sqlmock.AnyArg(), "m1", model.StatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.LockForFallback(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.LockForFallback(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, ok, "second lock must observe zero rows")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockForFallbackError(t *testing.T) {
	repo, mock, done := newSMSRepo(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sms_messages SET status`)).WillReturnError(errors.New("deadlock"))

	ok, err := repo.LockForFallback(context.Background(), "m1")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "lock sms message m1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFallbackSent(t *testing.T) {
	repo, mock, done := newSMSRepo(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta(`retry_history = COALESCE(retry_history, '[]'::jsonb) || $3::jsonb`)).
		WithArgs(model.StatusFallbackWhatsApp, "After 6 SMS attempts, sent via WhatsApp",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "m1", model.StatusProcessingFallback).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkFallbackSent(context.Background(), "m1", "After 6 SMS attempts, sent via WhatsApp",
		model.RetryEntry{Attempt: 7, Status: string(model.StatusFallbackWhatsApp), Timestamp: time.Now()})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevertFallback(t *testing.T) {
	repo, mock, done := newSMSRepo(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sms_messages SET status = $1, error_message = $2`)).
		WithArgs(model.StatusFailed, "whatsapp: number not on whatsapp", sqlmock.AnyArg(), "m1", model.StatusProcessingFallback).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RevertFallback(context.Background(), "m1", "whatsapp: number not on whatsapp")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock, done := newSMSRepo(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM sms_messages WHERE id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, appErrors.IsMessageNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDRejectsUnknownStatus(t *testing.T) {
	repo, mock, done := newSMSRepo(t)
	defer done()

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM sms_messages WHERE id = $1`)).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(smsColumnNames).
			AddRow("m1", "+5561999998888", "Seu código: AB12C", "bounced", 6, 6,
				nil, nil, nil, nil, created, created, nil, nil))

	msg, err := repo.GetByID(context.Background(), "m1")
	assert.Nil(t, msg)
	assert.ErrorContains(t, err, `unknown status "bounced"`)
	assert.False(t, appErrors.IsMessageNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// internal/service/fallback_dispatcher.go
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/unclebandit/crm-sms-fallback/internal/classifier"
	"github.com/unclebandit/crm-sms-fallback/internal/metrics"
	"github.com/unclebandit/crm-sms-fallback/internal/model"
	"github.com/unclebandit/crm-sms-fallback/internal/phone"
	"github.com/unclebandit/crm-sms-fallback/internal/repository"
	"github.com/unclebandit/crm-sms-fallback/internal/sender"
)

// MessageStore is the part of the SMS store the dispatcher writes through.
// LockForFallback must be a compare-and-swap on status.
type MessageStore interface {
	ListFallbackCandidates(ctx context.Context, limit int) ([]*model.OutboundMessage, error)
	LockForFallback(ctx context.Context, id string) (bool, error)
	MarkFallbackSent(ctx context.Context, id, note string, entry model.RetryEntry) error
	RevertFallback(ctx context.Context, id, reason string) error
}

type SettingsStore interface {
	Get(ctx context.Context) (*model.IntegrationSettings, error)
}

type WhatsAppSender interface {
	SendTemplate(ctx context.Context, msg sender.TemplateMessage) error
}

type Resolver interface {
	FindUnverifiedRecipient(ctx context.Context, phone string) (Recipient, error)
	FindLeaderByPhone(ctx context.Context, phone string) (*LeaderMatch, error)
}

// Result is the per-message outcome reported in RunDetail.
type Result string

const (
	ResultWhatsAppSent    Result = "whatsapp_sent"
	ResultWhatsAppFailed  Result = "whatsapp_failed"
	ResultNoCode          Result = "no_code"
	ResultNoRecipient     Result = "no_recipient"
	ResultNoLink          Result = "no_link"
	ResultNoLeader        Result = "no_leader"
	ResultSkipped         Result = "skipped"
	ResultSkippedLowRetry Result = "skipped_low_retry"
	ResultAlreadyLocked   Result = "already_locked"
	ResultLockError       Result = "lock_error"
)

// Reasons a run did nothing on purpose.
const (
	ReasonQuietHours       = "quiet_hours"
	ReasonFallbackDisabled = "fallback_disabled"
)

const (
	defaultBatchSize = 50
	fallbackNote     = "After %d SMS attempts, sent via WhatsApp"
)

type RunDetail struct {
	ID     string                 `json:"id"`
	Phone  string                 `json:"phone"`
	Type   classifier.MessageType `json:"type"`
	Result Result                 `json:"result"`
	Error  string                 `json:"error,omitempty"`
}

type RunReport struct {
	RunID               string      `json:"run_id"`
	Success             bool        `json:"success"`
	Reason              string      `json:"reason,omitempty"`
	Processed           int         `json:"processed"`
	VerificationSuccess int         `json:"verification_success"`
	VerificationFailed  int         `json:"verification_failed"`
	AffiliateSuccess    int         `json:"affiliate_success"`
	AffiliateFailed     int         `json:"affiliate_failed"`
	NoData              int         `json:"no_data"`
	Skipped             int         `json:"skipped"`
	Details             []RunDetail `json:"details"`
	DurationMS          int64       `json:"duration_ms"`
}

func (r *RunReport) record(d RunDetail) {
	r.Details = append(r.Details, d)
	r.Processed++
	switch d.Result {
	case ResultWhatsAppSent:
		if d.Type == classifier.TypeAffiliateLink {
			r.AffiliateSuccess++
		} else {
			r.VerificationSuccess++
		}
	case ResultWhatsAppFailed:
		if d.Type == classifier.TypeAffiliateLink {
			r.AffiliateFailed++
		} else {
			r.VerificationFailed++
		}
	case ResultNoCode, ResultNoRecipient, ResultNoLink, ResultNoLeader:
		r.NoData++
	default:
		r.Skipped++
	}
	metrics.FallbackMessages.WithLabelValues(string(d.Type), string(d.Result)).Inc()
}

type DispatcherConfig struct {
	BatchSize            int
	Delay                time.Duration
	VerificationTemplate string
	AffiliateTemplate    string
}

// FallbackDispatcher re-sends SMS messages that exhausted their retry
// budget over WhatsApp. Runs may overlap; the status compare-and-swap in
// MessageStore.LockForFallback keeps each message to a single send.
type FallbackDispatcher struct {
	Messages MessageStore
	Settings SettingsStore
	Resolver Resolver
	WhatsApp WhatsAppSender
	Gate     *PauseGate
	Config   DispatcherConfig
	Logger   *log.Logger

	Now   func() time.Time
	Sleep func(time.Duration)
}

func NewFallbackDispatcher(messages MessageStore, settings SettingsStore, resolver Resolver,
	wa WhatsAppSender, cfg DispatcherConfig, logger *log.Logger) *FallbackDispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &FallbackDispatcher{
		Messages: messages,
		Settings: settings,
		Resolver: resolver,
		WhatsApp: wa,
		Gate:     &PauseGate{},
		Config:   cfg,
		Logger:   logger,
		Now:      time.Now,
		Sleep:    time.Sleep,
	}
}

func (d *FallbackDispatcher) tracer() trace.Tracer {
	return otel.Tracer("crm-sms-fallback")
}

// Run executes one dispatcher pass. A returned error means the run aborted
// before touching any message (settings or candidate query failure).
func (d *FallbackDispatcher) Run(ctx context.Context) (*RunReport, error) {
	start := d.Now()
	report := &RunReport{RunID: uuid.NewString(), Details: []RunDetail{}}
	ctx, span := d.tracer().Start(ctx, "FallbackDispatcher.Run", trace.WithAttributes(
		attribute.String("run.id", report.RunID),
	))
	defer span.End()

	outcome := "completed"
	defer func() {
		report.DurationMS = d.Now().Sub(start).Milliseconds()
		metrics.FallbackRuns.WithLabelValues(outcome).Inc()
		metrics.FallbackRunDuration.Observe(float64(report.DurationMS) / 1000)
	}()

	settings, err := d.Settings.Get(ctx)
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrap(err, "load integration settings")
	}

	if IsQuietHours(settings, d.Now()) {
		outcome = ReasonQuietHours
		d.Logger.Printf("run %s: quiet hours (%s-%s), nothing sent", report.RunID, settings.QuietHoursStart, settings.QuietHoursEnd)
		report.Success = true
		report.Reason = ReasonQuietHours
		return report, nil
	}
	if !settings.ZAPIEnabled || !settings.WAAutoSMSFallbackEnabled {
		outcome = ReasonFallbackDisabled
		d.Logger.Printf("run %s: fallback disabled (zapi_enabled=%t, wa_auto_sms_fallback_enabled=%t)",
			report.RunID, settings.ZAPIEnabled, settings.WAAutoSMSFallbackEnabled)
		report.Success = true
		report.Reason = ReasonFallbackDisabled
		return report, nil
	}

	candidates, err := d.Messages.ListFallbackCandidates(ctx, d.Config.BatchSize)
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrap(err, "list fallback candidates")
	}
	span.SetAttributes(attribute.Int("run.candidates", len(candidates)))
	d.Logger.Printf("run %s: %d fallback candidates", report.RunID, len(candidates))

	for i, msg := range candidates {
		if i > 0 && d.Config.Delay > 0 {
			d.Sleep(d.Config.Delay)
		}
		if err := d.Gate.Wait(ctx); err != nil {
			d.Logger.Printf("run %s: stopped while paused after %d messages: %v", report.RunID, i, err)
			break
		}
		report.record(d.processMessage(ctx, msg))
	}

	report.Success = true
	d.Logger.Printf("run %s: processed=%d verification=%d/%d affiliate=%d/%d no_data=%d skipped=%d",
		report.RunID, report.Processed,
		report.VerificationSuccess, report.VerificationFailed,
		report.AffiliateSuccess, report.AffiliateFailed,
		report.NoData, report.Skipped)
	return report, nil
}

func (d *FallbackDispatcher) processMessage(ctx context.Context, msg *model.OutboundMessage) RunDetail {
	ctx, span := d.tracer().Start(ctx, "FallbackDispatcher.ProcessMessage", trace.WithAttributes(
		attribute.String("message.id", msg.ID),
		attribute.Int("message.retry_count", msg.RetryCount),
	))
	defer span.End()

	// The candidate query only filters coarsely; the type is derived from
	// the body itself.
	detail := RunDetail{ID: msg.ID, Phone: msg.Phone, Type: classifier.Classify(msg.Message)}
	span.SetAttributes(attribute.String("message.type", string(detail.Type)))

	locked, err := d.Messages.LockForFallback(ctx, msg.ID)
	if err != nil {
		d.Logger.Printf("message %s: lock failed: %v", msg.ID, err)
		span.RecordError(err)
		detail.Result = ResultLockError
		detail.Error = err.Error()
		return detail
	}
	if !locked {
		detail.Result = ResultAlreadyLocked
		return detail
	}

	// Past this point a miss leaves the row in processing_fallback for
	// manual follow-up; only a failed send is reverted to failed.
	switch detail.Type {
	case classifier.TypeVerification:
		if msg.RetryCount < repository.VerificationRetryThreshold {
			detail.Result = ResultSkippedLowRetry
			return detail
		}
		d.sendVerification(ctx, msg, &detail)
	case classifier.TypeAffiliateLink:
		if msg.RetryCount < repository.AffiliateRetryThreshold {
			detail.Result = ResultSkippedLowRetry
			return detail
		}
		d.sendAffiliateLink(ctx, msg, &detail)
	default:
		detail.Result = ResultSkipped
	}

	if detail.Error != "" {
		span.SetStatus(codes.Error, detail.Error)
	}
	return detail
}

func (d *FallbackDispatcher) sendVerification(ctx context.Context, msg *model.OutboundMessage, detail *RunDetail) {
	code, ok := classifier.ExtractVerificationCode(msg.Message)
	if !ok {
		d.Logger.Printf("message %s: no verification code in body", msg.ID)
		detail.Result = ResultNoCode
		return
	}

	rcpt, err := d.Resolver.FindUnverifiedRecipient(ctx, msg.Phone)
	if err != nil {
		d.Logger.Printf("message %s: resolve recipient: %v", msg.ID, err)
		detail.Error = err.Error()
	}
	if rcpt.Kind == RecipientNone {
		d.Logger.Printf("message %s: no unverified contact or leader for %s", msg.ID, msg.Phone)
		detail.Result = ResultNoRecipient
		return
	}

	tmpl := sender.TemplateMessage{
		Phone:        phone.Normalize(msg.Phone),
		TemplateSlug: d.Config.VerificationTemplate,
		Variables:    map[string]string{"nome": rcpt.Name, "codigo": code},
	}
	if rcpt.Kind == RecipientContact {
		id := rcpt.ID
		tmpl.ContactID = &id
	}
	d.deliver(ctx, msg, tmpl, detail)
}

func (d *FallbackDispatcher) sendAffiliateLink(ctx context.Context, msg *model.OutboundMessage, detail *RunDetail) {
	link, ok := classifier.ExtractAffiliateLink(msg.Message)
	if !ok {
		d.Logger.Printf("message %s: no referral link in body", msg.ID)
		detail.Result = ResultNoLink
		return
	}

	leader, err := d.Resolver.FindLeaderByPhone(ctx, msg.Phone)
	if err != nil {
		d.Logger.Printf("message %s: resolve leader: %v", msg.ID, err)
		detail.Error = err.Error()
	}
	if leader == nil {
		d.Logger.Printf("message %s: no active leader for %s", msg.ID, msg.Phone)
		detail.Result = ResultNoLeader
		return
	}

	d.deliver(ctx, msg, sender.TemplateMessage{
		Phone:        phone.Normalize(msg.Phone),
		TemplateSlug: d.Config.AffiliateTemplate,
		Variables:    map[string]string{"nome": leader.Name, "link_indicacao": link.URL},
	}, detail)
}

// deliver sends tmpl and writes the terminal state of a locked message.
// The terminal write ignores cancellation of ctx.
func (d *FallbackDispatcher) deliver(ctx context.Context, msg *model.OutboundMessage, tmpl sender.TemplateMessage, detail *RunDetail) {
	err := d.WhatsApp.SendTemplate(ctx, tmpl)
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		d.Logger.Printf("message %s: whatsapp %s failed: %v", msg.ID, tmpl.TemplateSlug, err)
		detail.Result = ResultWhatsAppFailed
		detail.Error = err.Error()
		if rerr := d.Messages.RevertFallback(ctx, msg.ID, err.Error()); rerr != nil {
			d.Logger.Printf("message %s: revert to failed: %v", msg.ID, rerr)
			detail.Error += "; " + rerr.Error()
		}
		return
	}

	detail.Result = ResultWhatsAppSent
	entry := model.RetryEntry{
		Attempt:   msg.RetryCount + 1,
		Status:    string(model.StatusFallbackWhatsApp),
		Timestamp: d.Now().UTC(),
	}
	if err := d.Messages.MarkFallbackSent(ctx, msg.ID, fmt.Sprintf(fallbackNote, msg.RetryCount), entry); err != nil {
		d.Logger.Printf("message %s: sent via whatsapp but status update failed: %v", msg.ID, err)
		detail.Error = err.Error()
	}
	d.Logger.Printf("message %s: sent via whatsapp after %d SMS attempts", msg.ID, msg.RetryCount)
}

package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/unclebandit/crm-sms-fallback/internal/model"
	"github.com/unclebandit/crm-sms-fallback/internal/phone"
	"github.com/unclebandit/crm-sms-fallback/internal/repository"
	"github.com/unclebandit/crm-sms-fallback/internal/sender"
)

// memoryMessageStore keeps SMS rows in memory and applies the same
// conditional-update rules as the Postgres repository.
type memoryMessageStore struct {
	mu   sync.Mutex
	msgs map[string]*model.OutboundMessage

	lockErr    map[string]error
	listErr    error
	unfiltered bool            // skip the retry thresholds in List
	listed     *sync.WaitGroup // when set, List blocks until every run has listed
	listCalls  int
}

func newMemoryMessageStore(msgs ...*model.OutboundMessage) *memoryMessageStore {
	s := &memoryMessageStore{msgs: map[string]*model.OutboundMessage{}, lockErr: map[string]error{}}
	for _, m := range msgs {
		s.msgs[m.ID] = m
	}
	return s
}

func (s *memoryMessageStore) ListFallbackCandidates(ctx context.Context, limit int) ([]*model.OutboundMessage, error) {
	s.mu.Lock()
	s.listCalls++
	if s.listErr != nil {
		s.mu.Unlock()
		return nil, s.listErr
	}
	var out []*model.OutboundMessage
	for _, m := range s.msgs {
		if m.Status != model.StatusFailed {
			continue
		}
		lower := strings.ToLower(m.Message)
		affiliate := strings.Contains(lower, "/cadastro/") || strings.Contains(lower, "link de indica")
		verification := strings.Contains(lower, "verificar-") || strings.Contains(lower, "código") || strings.Contains(lower, "codigo")
		if s.unfiltered || (verification && m.RetryCount >= repository.VerificationRetryThreshold) ||
			(affiliate && m.RetryCount >= repository.AffiliateRetryThreshold) {
			cp := *m
			out = append(out, &cp)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	if s.listed != nil {
		s.listed.Done()
		s.listed.Wait()
	}
	return out, nil
}

func (s *memoryMessageStore) LockForFallback(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lockErr[id]; err != nil {
		return false, err
	}
	m, ok := s.msgs[id]
	if !ok || m.Status != model.StatusFailed {
		return false, nil
	}
	m.Status = model.StatusProcessingFallback
	return true, nil
}

// Terminal writes fail on a done context, as database/sql does.
func (s *memoryMessageStore) MarkFallbackSent(ctx context.Context, id, note string, entry model.RetryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.msgs[id]
	if m.Status != model.StatusProcessingFallback {
		return nil
	}
	m.Status = model.StatusFallbackWhatsApp
	m.ErrorMessage = &note
	m.RetryHistory = append(m.RetryHistory, entry)
	return nil
}

func (s *memoryMessageStore) RevertFallback(ctx context.Context, id, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.msgs[id]
	if m.Status != model.StatusProcessingFallback {
		return nil
	}
	m.Status = model.StatusFailed
	m.ErrorMessage = &reason
	return nil
}

func (s *memoryMessageStore) get(id string) model.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.msgs[id]
}

type staticSettings struct {
	settings *model.IntegrationSettings
	err      error
}

func (s staticSettings) Get(ctx context.Context) (*model.IntegrationSettings, error) {
	return s.settings, s.err
}

func enabledSettings() staticSettings {
	return staticSettings{settings: &model.IntegrationSettings{ZAPIEnabled: true, WAAutoSMSFallbackEnabled: true}}
}

type memoryRecipients struct {
	contacts []model.Contact
	leaders  []model.Leader
	err      error
}

func (r *memoryRecipients) FindUnverifiedContact(ctx context.Context, suffix string) (*model.Contact, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, c := range r.contacts {
		if !c.IsVerified && strings.HasSuffix(phone.Digits(c.Phone), suffix) {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memoryRecipients) FindUnverifiedLeader(ctx context.Context, suffix string) (*model.Leader, error) {
	return r.findLeader(suffix, true)
}

func (r *memoryRecipients) FindActiveLeader(ctx context.Context, suffix string) (*model.Leader, error) {
	return r.findLeader(suffix, false)
}

func (r *memoryRecipients) findLeader(suffix string, unverifiedOnly bool) (*model.Leader, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, l := range r.leaders {
		if !l.IsActive || (unverifiedOnly && l.IsVerified) {
			continue
		}
		if strings.HasSuffix(phone.Digits(l.Phone), suffix) {
			l := l
			return &l, nil
		}
	}
	return nil, nil
}

type recordingWhatsApp struct {
	mu   sync.Mutex
	sent []sender.TemplateMessage
	err  error
}

func (w *recordingWhatsApp) SendTemplate(ctx context.Context, msg sender.TemplateMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, msg)
	return w.err
}

func (w *recordingWhatsApp) calls() []sender.TemplateMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]sender.TemplateMessage(nil), w.sent...)
}

// cancellingWhatsApp cancels the run context while the send is in flight.
type cancellingWhatsApp struct {
	cancel context.CancelFunc
	fail   bool
}

func (w *cancellingWhatsApp) SendTemplate(ctx context.Context, msg sender.TemplateMessage) error {
	w.cancel()
	if w.fail {
		return errors.New("whatsapp send failed: " + ctx.Err().Error())
	}
	return nil
}

var errProvider = errors.New("whatsapp send failed: number not on whatsapp")

// internal/service/recipient_resolver.go
package service

import (
	"context"

	"github.com/unclebandit/crm-sms-fallback/internal/model"
	"github.com/unclebandit/crm-sms-fallback/internal/phone"
)

// RecipientStore is the lookup surface RecipientResolver needs.
type RecipientStore interface {
	FindUnverifiedContact(ctx context.Context, suffix string) (*model.Contact, error)
	FindUnverifiedLeader(ctx context.Context, suffix string) (*model.Leader, error)
	FindActiveLeader(ctx context.Context, suffix string) (*model.Leader, error)
}

type RecipientKind string

const (
	RecipientContact RecipientKind = "contact"
	RecipientLeader  RecipientKind = "leader"
	RecipientNone    RecipientKind = "none"
)

type Recipient struct {
	Kind RecipientKind
	ID   string
	Name string
}

type LeaderMatch struct {
	ID             string
	Name           string
	AffiliateToken string
}

type RecipientResolver struct {
	Store RecipientStore
}

// FindUnverifiedRecipient resolves the person a verification SMS was sent
// to. Unverified contacts take priority over unverified active leaders;
// verified people are never returned.
func (r *RecipientResolver) FindUnverifiedRecipient(ctx context.Context, rawPhone string) (Recipient, error) {
	suffix := phone.Suffix(rawPhone)
	if suffix == "" {
		return Recipient{Kind: RecipientNone}, nil
	}

	c, err := r.Store.FindUnverifiedContact(ctx, suffix)
	if err != nil {
		return Recipient{Kind: RecipientNone}, err
	}
	if c != nil {
		return Recipient{Kind: RecipientContact, ID: c.ID, Name: c.Name}, nil
	}

	l, err := r.Store.FindUnverifiedLeader(ctx, suffix)
	if err != nil {
		return Recipient{Kind: RecipientNone}, err
	}
	if l != nil {
		return Recipient{Kind: RecipientLeader, ID: l.ID, Name: l.Name}, nil
	}
	return Recipient{Kind: RecipientNone}, nil
}

// FindLeaderByPhone resolves any active leader for a referral-link SMS.
// It returns nil when nobody matches.
func (r *RecipientResolver) FindLeaderByPhone(ctx context.Context, rawPhone string) (*LeaderMatch, error) {
	suffix := phone.Suffix(rawPhone)
	if suffix == "" {
		return nil, nil
	}

	l, err := r.Store.FindActiveLeader(ctx, suffix)
	if err != nil || l == nil {
		return nil, err
	}
	m := &LeaderMatch{ID: l.ID, Name: l.Name}
	if l.AffiliateToken != nil {
		m.AffiliateToken = *l.AffiliateToken
	}
	return m, nil
}

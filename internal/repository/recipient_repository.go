package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/unclebandit/crm-sms-fallback/internal/model"
)

// RecipientRepository looks up contacts and leaders by the trailing digits
// of their phone number.
type RecipientRepository struct {
	DB *sql.DB
}

const phoneSuffixMatch = `regexp_replace(phone, '\D', '', 'g') LIKE '%' || $1`

// FindUnverifiedContact returns the oldest unverified contact whose phone
// ends with suffix, or nil.
func (r *RecipientRepository) FindUnverifiedContact(ctx context.Context, suffix string) (*model.Contact, error) {
	query := `
		SELECT id, name, phone, is_verified, verification_code
		FROM contacts
		WHERE is_verified = false AND ` + phoneSuffixMatch + `
		ORDER BY created_at ASC
		LIMIT 1
	`
	var c model.Contact
	err := r.DB.QueryRowContext(ctx, query, suffix).Scan(&c.ID, &c.Name, &c.Phone, &c.IsVerified, &c.VerificationCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, errors.Wrap(err, "find unverified contact")
	}
	return &c, nil
}

// FindUnverifiedLeader returns an active, unverified leader matching suffix.
func (r *RecipientRepository) FindUnverifiedLeader(ctx context.Context, suffix string) (*model.Leader, error) {
	return r.findLeader(ctx, `is_active = true AND is_verified = false AND `+phoneSuffixMatch, suffix)
}

// FindActiveLeader returns an active leader matching suffix whatever its
// verification status.
func (r *RecipientRepository) FindActiveLeader(ctx context.Context, suffix string) (*model.Leader, error) {
	return r.findLeader(ctx, `is_active = true AND `+phoneSuffixMatch, suffix)
}

func (r *RecipientRepository) findLeader(ctx context.Context, where, suffix string) (*model.Leader, error) {
	query := `
		SELECT id, name, phone, is_active, is_verified, verification_code, affiliate_token
		FROM leaders
		WHERE ` + where + `
		ORDER BY created_at ASC
		LIMIT 1
	`
	var l model.Leader
	err := r.DB.QueryRowContext(ctx, query, suffix).Scan(
		&l.ID, &l.Name, &l.Phone, &l.IsActive, &l.IsVerified, &l.VerificationCode, &l.AffiliateToken,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find leader")
	}
	return &l, nil
}

// internal/model/recipient.go
package model

// Contact is a CRM contact. VerificationCode is only meaningful while
// IsVerified is false.
type Contact struct {
	ID               string  `db:"id" json:"id"`
	Name             string  `db:"name" json:"name"`
	Phone            string  `db:"phone" json:"phone"`
	IsVerified       bool    `db:"is_verified" json:"is_verified"`
	VerificationCode *string `db:"verification_code" json:"verification_code,omitempty"`
}

type Leader struct {
	ID               string  `db:"id" json:"id"`
	Name             string  `db:"name" json:"name"`
	Phone            string  `db:"phone" json:"phone"`
	IsActive         bool    `db:"is_active" json:"is_active"`
	IsVerified       bool    `db:"is_verified" json:"is_verified"`
	VerificationCode *string `db:"verification_code" json:"verification_code,omitempty"`
	AffiliateToken   *string `db:"affiliate_token" json:"affiliate_token,omitempty"`
}

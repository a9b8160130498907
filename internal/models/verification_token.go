package models

import (
	"time"
)

// VerificationToken is the persisted half of a single-use token. The raw
// token is only ever held by the recipient; TokenHash is its SHA-256.
type VerificationToken struct {
	TokenHash  string     `json:"-"`
	SubjectID  string     `json:"subject_id"`
	Purpose    Purpose    `json:"purpose"`
	Payload    string     `json:"-"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// IsExpired reports whether the token has expired at now
func (t *VerificationToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsConsumed reports whether the token has already been used
func (t *VerificationToken) IsConsumed() bool {
	return t.ConsumedAt != nil
}

// IsValid reports whether the token can still be consumed at now
func (t *VerificationToken) IsValid(now time.Time) bool {
	return !t.IsExpired(now) && !t.IsConsumed()
}

package models

import "time"

// Purpose identifies the stream an attempt record or verification token belongs to.
type Purpose string

const (
	PurposeAuthFailure   Purpose = "auth-failure"
	PurposePasswordReset Purpose = "password-reset"
	PurposeEmailChange   Purpose = "email-change"
)

// AttemptRecord is one append-only entry in a sliding-window counter.
type AttemptRecord struct {
	ID         int64     `db:"id"`
	SubjectID  string    `db:"subject_id"`
	Purpose    Purpose   `db:"purpose"`
	OccurredAt time.Time `db:"occurred_at"`
}

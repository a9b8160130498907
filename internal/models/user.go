package models

import (
	"time"
)

// User is the local account row backing credential verification and
// directory lookups.
type User struct {
	Username               string
	Email                  string
	PasswordHash           string
	Enabled                bool
	PasswordChangeRequired bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Login methods recorded in login history
const (
	LoginMethodForm = "FORM"
	LoginMethodOIDC = "OIDC"
)

// LoginRecord is a single successful login.
type LoginRecord struct {
	ID         int64     `db:"id"`
	SubjectID  string    `db:"subject_id"`
	Method     string    `db:"method"`
	Provider   string    `db:"provider"`
	IPAddress  string    `db:"ip_address"`
	UserAgent  string    `db:"user_agent"`
	LoggedInAt time.Time `db:"logged_in_at"`
}

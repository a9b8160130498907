package models

import (
	"encoding/json"
	"time"
)

// IdentityLink maps an external provider account to a local subject.
type IdentityLink struct {
	ID              string          `json:"id"`
	SubjectID       string          `json:"subject_id"`
	Provider        string          `json:"provider"`
	ProviderSubject string          `json:"provider_subject"`
	Email           string          `json:"email,omitempty"`
	Claims          json.RawMessage `json:"-"`
	Enabled         bool            `json:"enabled"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ExternalIdentity is the verified result of a provider callback.
type ExternalIdentity struct {
	Provider string
	Subject  string
	Email    string
	Claims   map[string]any
}

// LinkMode is the intent recorded when a provider redirect starts.
type LinkMode string

const (
	LinkModeLogin LinkMode = "LOGIN"
	LinkModeLink  LinkMode = "LINK"
)

// LinkSession is the per-browser-session marker for an in-flight provider redirect.
// LinkingSubjectID is set only in LINK mode.
type LinkSession struct {
	Mode             LinkMode  `json:"mode"`
	LinkingSubjectID string    `json:"linking_subject_id,omitempty"`
	Provider         string    `json:"provider"`
	State            string    `json:"state"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

func (s *LinkSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

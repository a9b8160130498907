package models

import (
	"github.com/golang-jwt/jwt/v5"
)

const TokenTypeAccess = "access"

type TokenClaims struct {
	Type      string `json:"type"`
	SubjectID string `json:"sub_id"`
	Email     string `json:"email,omitempty"`
	Method    string `json:"amr,omitempty"`
	jwt.RegisteredClaims
}

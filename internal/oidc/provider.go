package oidc

import (
	"context"
	"errors"
	"fmt"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/BradenHooton/bastion/internal/models"
)

var (
	ErrMissingIDToken = errors.New("no id_token in token response")
	ErrMissingSubject = errors.New("id token has no subject")
)

// Config describes one external OpenID Connect provider
type Config struct {
	Name         string
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Provider wraps the auth-code flow of a single provider and turns a
// callback code into a verified external identity.
type Provider struct {
	name     string
	oauth    *oauth2.Config
	verifier *gooidc.IDTokenVerifier
}

// NewProvider performs discovery against the issuer
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	discovered, err := gooidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover provider %s: %w", cfg.Name, err)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     discovered.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopesWithOpenID(cfg.Scopes),
	}

	verifier := discovered.Verifier(&gooidc.Config{ClientID: cfg.ClientID})
	return NewProviderWithVerifier(cfg.Name, oauthConfig, verifier), nil
}

// NewProviderWithVerifier builds a provider from explicit endpoints, skipping discovery
func NewProviderWithVerifier(name string, oauthConfig *oauth2.Config, verifier *gooidc.IDTokenVerifier) *Provider {
	return &Provider{name: name, oauth: oauthConfig, verifier: verifier}
}

func scopesWithOpenID(scopes []string) []string {
	for _, s := range scopes {
		if s == gooidc.ScopeOpenID {
			return scopes
		}
	}
	return append([]string{gooidc.ScopeOpenID}, scopes...)
}

// Name returns the configured provider name
func (p *Provider) Name() string {
	return p.name
}

// AuthCodeURL returns the provider redirect carrying state
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange redeems the code and verifies the returned ID token
func (p *Provider) Exchange(ctx context.Context, code string) (*models.ExternalIdentity, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, ErrMissingIDToken
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	if idToken.Subject == "" {
		return nil, ErrMissingSubject
	}

	email, _ := claims["email"].(string)
	return &models.ExternalIdentity{
		Provider: p.name,
		Subject:  idToken.Subject,
		Email:    email,
		Claims:   claims,
	}, nil
}

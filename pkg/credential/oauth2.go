package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// OAuth2Config configures an OAuth2Refresher.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string

	// HTTPClient is used for token requests when set.
	HTTPClient *http.Client
}

// OAuth2Refresher refreshes tokens with the OAuth 2.0 refresh_token grant.
type OAuth2Refresher struct {
	cfg    *oauth2.Config
	client *http.Client
}

// NewOAuth2Refresher creates a refresher for one platform's token endpoint.
func NewOAuth2Refresher(cfg OAuth2Config) *OAuth2Refresher {
	return &OAuth2Refresher{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		},
		client: cfg.HTTPClient,
	}
}

// Refresh performs one refresh_token grant.
func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token is empty")
	}
	if r.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	}

	tok, err := r.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh grant: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("refresh grant returned no access token")
	}

	out := &Token{
		AccessToken:  tok.AccessToken,
		ExpiresAt:    tok.Expiry,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scope = scope
	}
	return out, nil
}

// Verify interface compliance.
var _ Refresher = (*OAuth2Refresher)(nil)

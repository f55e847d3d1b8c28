package identity

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// OAuthExchanger runs the authorization code flow and returns the ID token
type OAuthExchanger struct {
	config *oauth2.Config
}

// NewOAuthExchanger uses Google endpoints unless AuthURL and TokenURL are set
func NewOAuthExchanger(cfg Config) *OAuthExchanger {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" && cfg.TokenURL != "" {
		endpoint = oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
	}

	return &OAuthExchanger{config: &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     endpoint,
	}}
}

func (e *OAuthExchanger) Exchange(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", rejected("authorization code required", nil)
	}

	token, err := e.config.Exchange(ctx, code)
	if err != nil {
		return "", rejected("code exchange failed", err)
	}

	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return "", rejected("token response carried no id_token", nil)
	}
	return idToken, nil
}

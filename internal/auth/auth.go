package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoToken is returned when OAuth client credentials are configured but no
// token has been stored yet. Tokens are provisioned outside of the bot.
var ErrNoToken = errors.New("no stored OAuth token")

// TokenStore is an interface for saving and loading OAuth tokens.
type TokenStore interface {
	SaveToken(token *oauth2.Token) error
	LoadToken() (*oauth2.Token, error)
}

// autoSaveTokenSource wraps an oauth2.TokenSource and saves refreshed tokens.
// The calendar client issues requests from concurrent handlers, so access is serialised.
type autoSaveTokenSource struct {
	mu         sync.Mutex
	source     oauth2.TokenSource
	tokenStore TokenStore
	lastToken  *oauth2.Token
}

// Token implements oauth2.TokenSource and saves the token if it was refreshed.
func (a *autoSaveTokenSource) Token() (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	token, err := a.source.Token()
	if err != nil {
		return nil, err
	}

	if a.lastToken == nil || a.lastToken.AccessToken != token.AccessToken {
		if err := a.tokenStore.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		a.lastToken = token
	}

	return token, nil
}

// credentialsFile is the subset of a Google credentials file needed to pick the auth mode.
type credentialsFile struct {
	Type string `json:"type"`
}

// GetAuthenticatedClient returns an HTTP client authorised for the given scopes.
//
// A service account key ("type": "service_account") is used directly. Any other
// file is treated as an OAuth client ("installed" or "web" section) and requires
// a token already present in tokenStore.
func GetAuthenticatedClient(ctx context.Context, credentialsPath string, tokenStore TokenStore, scopes ...string) (*http.Client, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds credentialsFile
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	if creds.Type == "service_account" {
		jwtConfig, err := google.JWTConfigFromJSON(data, scopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to load service account credentials: %w", err)
		}
		return jwtConfig.Client(ctx), nil
	}

	oauthConfig, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth client credentials: %w", err)
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("OAuth client credentials need a token path: %w", ErrNoToken)
	}

	return clientFromStore(ctx, oauthConfig, tokenStore)
}

// clientFromStore builds a client from a stored token, persisting refreshed tokens back to the store.
func clientFromStore(ctx context.Context, oauthConfig *oauth2.Config, tokenStore TokenStore) (*http.Client, error) {
	token, err := tokenStore.LoadToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if token == nil {
		return nil, ErrNoToken
	}

	tokenSource := oauthConfig.TokenSource(ctx, token)

	autoSaveSource := &autoSaveTokenSource{
		source:     oauth2.ReuseTokenSource(token, tokenSource),
		tokenStore: tokenStore,
		lastToken:  token,
	}

	return oauth2.NewClient(ctx, autoSaveSource), nil
}

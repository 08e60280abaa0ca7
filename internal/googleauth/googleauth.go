// Package googleauth turns a stored OAuth token into an authorized HTTP client for the
// Google APIs slotbook talks to (Calendar, Gmail).
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const requestTimeout = 15 * time.Second

type Config struct {
	ClientID     string
	ClientSecret string
	TokenFile    string
}

// HTTPClient returns a client that refreshes the stored token for the given scopes.
func HTTPClient(ctx context.Context, cfg Config, scopes ...string) (*http.Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("google oauth client id and secret are required")
	}
	tok, err := LoadToken(cfg.TokenFile)
	if err != nil {
		return nil, err
	}
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}
	client := conf.Client(ctx, tok)
	client.Timeout = requestTimeout
	return client, nil
}

// LoadToken reads an oauth2.Token saved as JSON.
func LoadToken(path string) (*oauth2.Token, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("google oauth token file is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, errors.New("oauth token has no credentials")
	}
	return &tok, nil
}

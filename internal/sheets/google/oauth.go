package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/renameio/v2"
	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var ErrNoCredentials = errors.New("missing Google credentials: set a service account file or an OAuth client and token file")

func clientOption(ctx context.Context, creds Credentials) (goption.ClientOption, error) {
	if f := strings.TrimSpace(creds.ServiceAccountFile); f != "" {
		return goption.WithCredentialsFile(f), nil
	}
	if strings.TrimSpace(creds.OAuthClientFile) == "" || strings.TrimSpace(creds.OAuthTokenFile) == "" {
		return nil, ErrNoCredentials
	}

	cfg, err := LoadOAuthConfig(creds.OAuthClientFile)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(creds.OAuthTokenFile)
	if err != nil {
		return nil, err
	}
	return goption.WithTokenSource(cfg.TokenSource(ctx, tok)), nil
}

// LoadOAuthConfig reads an OAuth client secret file scoped to Sheets.
func LoadOAuthConfig(path string) (*oauth2.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	cfg, err := goauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client file: %w", err)
	}
	return cfg, nil
}

func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("oauth token %s holds no access or refresh token", path)
	}
	return &tok, nil
}

// SaveToken writes tok to path with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode oauth token: %w", err)
	}
	if err := renameio.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write oauth token: %w", err)
	}
	return nil
}

package google

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

const testClientJSON = `{"installed":{"client_id":"test","client_secret":"test","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`

func TestLoadOAuthConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")
	if err := os.WriteFile(path, []byte(testClientJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadOAuthConfig(path)
	if err != nil {
		t.Fatalf("LoadOAuthConfig: %v", err)
	}
	if cfg.ClientID != "test" || len(cfg.Scopes) != 1 {
		t.Errorf("unexpected config %+v", cfg)
	}

	if _, err := LoadOAuthConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing client file")
	}
}

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	want := &oauth2.Token{AccessToken: "test", RefreshToken: "refresh", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := SaveToken(path, want); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode %v, want 0600", perm)
	}

	got, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if got.AccessToken != "test" || got.RefreshToken != "refresh" || !got.Expiry.Equal(want.Expiry) {
		t.Errorf("LoadToken() = %+v", got)
	}

	empty := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(empty, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadToken(empty); err == nil {
		t.Error("expected error for token without credentials")
	}
}

func TestClientOptionRequiresCredentials(t *testing.T) {
	ctx := context.Background()
	if _, err := clientOption(ctx, Credentials{}); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
	if _, err := clientOption(ctx, Credentials{OAuthClientFile: "client.json"}); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials without token file, got %v", err)
	}
	if _, err := clientOption(ctx, Credentials{ServiceAccountFile: "/etc/sa.json"}); err != nil {
		t.Errorf("service account option: %v", err)
	}
	if _, err := New(ctx, " ", Credentials{ServiceAccountFile: "/etc/sa.json"}, "ledger_"); err == nil {
		t.Error("expected error for empty spreadsheet id")
	}
}

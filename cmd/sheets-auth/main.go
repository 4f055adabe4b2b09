// Command sheets-auth runs the OAuth consent flow once and saves the user
// token the backup worker uses to mirror ledgers to Google Sheets.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/oauth2"

	"smartaccounting/internal/cli"
	"smartaccounting/internal/config"
	applog "smartaccounting/internal/log"
	gsheet "smartaccounting/internal/sheets/google"
)

const authTimeout = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := applog.Setup(applog.ComponentSheets, cfg.Level())

	clientFile := pflag.String("client", cfg.GoogleOAuthClientFile, "OAuth client secret file")
	tokenFile := pflag.String("token", cfg.GoogleOAuthTokenFile, "where to save the user token")
	port := pflag.Int("port", 8085, "local port for the OAuth redirect")
	pflag.Parse()

	if *clientFile == "" {
		logger.Error("No OAuth client file: set GOOGLE_OAUTH_CLIENT_FILE or --client")
		os.Exit(2)
	}

	if err := authorize(logger, *clientFile, *tokenFile, *port); err != nil {
		logger.Error("Authorization failed", "error", err)
		os.Exit(1)
	}
}

func authorize(logger *applog.Logger, clientFile, tokenFile string, port int) error {
	oauthCfg, err := gsheet.LoadOAuthConfig(clientFile)
	if err != nil {
		return err
	}
	// The OAuth client must list this URI among its authorized redirects.
	oauthCfg.RedirectURL = fmt.Sprintf("http://localhost:%d/callback", port)

	state := uuid.NewString()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case q.Get("error") != "":
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
			errCh <- fmt.Errorf("consent refused: %s", q.Get("error"))
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		codeCh <- q.Get("code")
	})
	srv := &http.Server{Addr: fmt.Sprintf("localhost:%d", port), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer srv.Close()

	fmt.Printf("Open this URL to authorize:\n%s\n", oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	select {
	case code := <-codeCh:
		tok, err := oauthCfg.Exchange(ctx, code)
		if err != nil {
			return fmt.Errorf("token exchange: %w", err)
		}
		if err := gsheet.SaveToken(tokenFile, tok); err != nil {
			return err
		}
		logger.Info("Saved OAuth token", "path", tokenFile)
		return nil
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("authorization not completed: %w", ctx.Err())
	}
}

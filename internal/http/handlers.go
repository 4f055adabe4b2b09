package http

import (
	"context"
	"net/http"
	"time"

	"smartaccounting/internal/core"
	applog "smartaccounting/internal/log"
	"smartaccounting/internal/metrics"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks that the database answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"database": "ok"}
	if err := s.store.Ping(ctx); err != nil {
		applog.FromContext(ctx).Warn("Readiness check failed", applog.FieldError, err)
		checks["database"] = "failed"
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app_id":  AppID,
		"name":    AppName,
		"version": Version,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	err := s.auth.Register(r.Context(), req.Username, req.Password)
	metrics.RecordAuth("register", err)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"username": req.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	token, expires, err := s.auth.Login(r.Context(), req.Username, req.Password)
	metrics.RecordAuth("login", err)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err == nil {
		err = s.auth.Logout(r.Context(), token)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cat := s.ledger.Catalog()
	writeJSON(w, http.StatusOK, map[string][]string{
		string(core.Income):  cat.Categories(core.Income),
		string(core.Expense): cat.Categories(core.Expense),
	})
}

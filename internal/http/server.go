package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/text/language"

	"smartaccounting/internal/catalog"
	"smartaccounting/internal/core"
	applog "smartaccounting/internal/log"
	"smartaccounting/internal/metrics"
	"smartaccounting/internal/services"
)

const (
	AppID   = "com.example.smartaccountingapp"
	AppName = "Smart Accounting"
)

// Version is overridden at build time with -ldflags.
var Version = "1.0.0"

type Ledger interface {
	Catalog() *catalog.Catalog
	AddRecord(ctx context.Context, userID string, rec core.Record) (core.Record, error)
	UpdateRecord(ctx context.Context, userID string, rec core.Record) (core.Record, error)
	DeleteRecord(ctx context.Context, userID string, id int64) error
	DeleteAllRecords(ctx context.Context, userID string) (int64, error)
	GetRecord(ctx context.Context, userID string, id int64) (core.Record, error)
	ListRecords(ctx context.Context, userID string, f core.Filter) ([]core.Record, error)
}

type Reports interface {
	Summary(ctx context.Context, userID string, r core.DateRange) (core.Summary, error)
	CategoryBreakdown(ctx context.Context, userID string, r core.DateRange) ([]core.CategoryAmount, error)
	Trend(ctx context.Context, userID string, r core.DateRange) (services.TrendReport, error)
	Dashboard(ctx context.Context, userID string, r core.DateRange) (services.Dashboard, error)
}

type Backups interface {
	Encode(ctx context.Context, userID string) ([]byte, int, error)
	Export(ctx context.Context, userID string) (services.ExportResult, error)
	Import(ctx context.Context, userID string) (services.ImportResult, error)
	ImportData(ctx context.Context, userID string, data []byte) (services.ImportResult, error)
}

type Authenticator interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (string, time.Time, error)
	Verify(ctx context.Context, token string) (string, error)
	Logout(ctx context.Context, token string) error
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the API is built on.
type Deps struct {
	Ledger  Ledger
	Reports Reports
	Backups Backups
	Auth    Authenticator
	Store   Pinger
	Logger  *applog.Logger

	Locale             language.Tag
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	ledger  Ledger
	reports Reports
	backups Backups
	auth    Authenticator
	store   Pinger
	logger  *applog.Logger
	present presenter
	limit   func(http.Handler) http.Handler

	now          func() time.Time
	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}
	perMinute := d.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}

	s := &Server{
		ledger:  d.Ledger,
		reports: d.Reports,
		backups: d.Backups,
		auth:    d.Auth,
		store:   d.Store,
		logger:  logger,
		present: presenter{locale: d.Locale},
		limit:   rateLimit(perMinute),
		now:     time.Now,
		started: time.Now(),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(applog.Middleware(s.logger, requestIDFrom, extractClientIP))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(observe)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/about", s.handleAbout)

		r.With(s.limit).Post("/auth/register", s.handleRegister)
		r.With(s.limit).Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/categories", s.handleCategories)

			r.Get("/records", s.handleListRecords)
			r.With(s.limit).Post("/records", s.handleCreateRecord)
			r.With(s.limit).Delete("/records", s.handleDeleteAllRecords)
			r.Get("/records/{id}", s.handleGetRecord)
			r.With(s.limit).Put("/records/{id}", s.handleUpdateRecord)
			r.With(s.limit).Delete("/records/{id}", s.handleDeleteRecord)

			r.Get("/reports/summary", s.handleSummary)
			r.Get("/reports/categories", s.handleCategoryReport)
			r.Get("/reports/trend", s.handleTrend)
			r.Get("/reports/dashboard", s.handleDashboard)

			r.With(s.limit).Post("/backup/export", s.handleExport)
			r.With(s.limit).Post("/backup/import", s.handleImport)
			r.Get("/backup", s.handleDownloadBackup)
			r.With(s.limit).Put("/backup", s.handleUploadBackup)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return otelhttp.NewHandler(r, "smartaccounting",
		otelhttp.WithFilter(shouldTrace),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}),
	)
}

// shouldTrace skips probes and scrapes.
func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return true
}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
)

// requestID keeps a well formed incoming X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

// observe records latency by route pattern so ids do not become labels.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveHTTP(r.Method, route, fmt.Sprintf("%dxx", status/100), time.Since(start))
	})
}

// requireAuth resolves the bearer token to a user id.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		userID, err := s.auth.Verify(r.Context(), token)
		if err != nil {
			fail(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = applog.WithLogger(ctx, applog.FromContext(ctx).With(applog.FieldUserID, userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Package frontend serves the license HTTP endpoints: the payment webhook,
// license validation, admin operations, health and metrics.
package frontend

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/milalabs/licsync/internal/backup"
	"github.com/milalabs/licsync/internal/cmn/config"
	"github.com/milalabs/licsync/internal/gitsync"
	"github.com/milalabs/licsync/internal/license"
	"github.com/milalabs/licsync/internal/logger"
	"github.com/milalabs/licsync/internal/logger/tag"
)

const maxBodyBytes = 1 << 20

// Syncer is the part of the sync engine the admin routes use.
type Syncer interface {
	Dispatch(ctx context.Context, trigger gitsync.Trigger) <-chan *gitsync.SyncResult
	GetStatus(ctx context.Context) (*gitsync.SyncState, error)
}

// Backuper runs backup transfers on request.
type Backuper interface {
	Dispatch(ctx context.Context, op backup.Operation) <-chan *backup.Result
}

// Server is the HTTP boundary.
type Server struct {
	cfg        config.Server
	logFormat  string
	licenses   license.Service
	syncer     Syncer
	backuper   Backuper
	registry   *prometheus.Registry
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithSyncer enables the sync admin routes.
func WithSyncer(s Syncer) Option {
	return func(srv *Server) {
		srv.syncer = s
	}
}

// WithBackuper enables the backup admin route.
func WithBackuper(b Backuper) Option {
	return func(srv *Server) {
		srv.backuper = b
	}
}

// WithRegistry serves the registry at /metrics.
func WithRegistry(r *prometheus.Registry) Option {
	return func(srv *Server) {
		srv.registry = r
	}
}

// WithLogFormat sets the request log format (text or json).
func WithLogFormat(format string) Option {
	return func(srv *Server) {
		srv.logFormat = format
	}
}

// NewServer creates a Server.
func NewServer(cfg config.Server, licenses license.Service, opts ...Option) *Server {
	srv := &Server{cfg: cfg, licenses: licenses}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Handler returns the routed handler.
func (srv *Server) Handler() http.Handler {
	requestLogger := httplog.NewLogger("http", httplog.Options{
		LogLevel:         slog.LevelDebug,
		JSON:             srv.logFormat == "json",
		Concise:          true,
		MessageFieldName: "msg",
		// Admin keys travel in headers.
		RequestHeaders: false,
	})

	r := chi.NewMux()
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(requestLogger))
	r.Use(withRecoverer)

	r.Get("/health", srv.handleHealth)
	if srv.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(srv.registry, promhttp.HandlerOpts{}))
	}

	r.Post("/webhook/payhip", srv.handleWebhook)
	r.Post("/validate_license", srv.handleValidate)

	r.Route("/admin", func(r chi.Router) {
		r.Use(srv.requireAdmin)
		r.Get("/licenses", srv.handleListLicenses)
		r.Post("/clear", srv.handleClear)
		r.Post("/sync", srv.handleSync)
		r.Get("/sync/status", srv.handleSyncStatus)
		r.Post("/backup", srv.handleBackup)
	})

	return r
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (srv *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(srv.cfg.Host, strconv.Itoa(srv.cfg.Port))
	srv.httpServer = &http.Server{
		Handler:           srv.Handler(),
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		logger.Info(ctx, "Server is starting", tag.Addr(addr))
		if err := srv.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info(ctx, "Context done, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	srv.httpServer.SetKeepAlivesEnabled(false)
	if err := srv.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Failed to shutdown server", tag.Error(err))
		return err
	}

	logger.Info(ctx, "Server shutdown complete")
	return nil
}

// withRecoverer is adapted from chi's recoverer middleware.
func withRecoverer(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				logger.Error(r.Context(), "Panic occurred", tag.Error(rvr), slog.String("st", string(debug.Stack())))
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	}

	return http.HandlerFunc(fn)
}

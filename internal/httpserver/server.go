// Package httpserver wires the HTTP surface: health and metrics, the two
// provider webhooks, the public impact endpoint, and the admin control
// plane.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bot-sankalp/internal/cache"
	"bot-sankalp/internal/impact"
	"bot-sankalp/internal/metrics"
	"bot-sankalp/internal/repo"
	"bot-sankalp/internal/workers"
)

const impactRateWindow = 5 * time.Second

// Handlers groups the webhook handlers to mount.
type Handlers struct {
	WhatsAppWebhook http.Handler
	RazorpayWebhook http.Handler
}

// Dependencies exposes core dependencies to handlers that need them.
type Dependencies struct {
	Store      repo.Store
	Redis      *cache.Redis
	Impact     *impact.Service
	Workers    *workers.Manager
	Migrations fs.FS
	AdminKey   string
}

// Server wraps an http.Server with predefined routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	handlers   Handlers
	deps       Dependencies
	basePath   string
}

// New creates a new HTTP server listening on addr.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, handlers Handlers, basePath string) *Server {
	server := &Server{
		logger:   logger.With("component", "http"),
		metrics:  metricRegistry,
		handlers: handlers,
		basePath: normaliseBasePath(basePath),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/impact", server.handleImpact)

	if handlers.WhatsAppWebhook != nil {
		mux.Handle("/webhook/whatsapp", handlers.WhatsAppWebhook)
	}
	if handlers.RazorpayWebhook != nil {
		mux.Handle("/webhook/razorpay", handlers.RazorpayWebhook)
	}

	mux.HandleFunc("/admin/broadcast/rashiphalalu", server.adminOnly(server.handleBroadcastDaily))
	mux.HandleFunc("/admin/broadcast/weekly-sankalp", server.adminOnly(server.handleBroadcastWeekly))
	mux.HandleFunc("/admin/seva/batch/create", server.adminOnly(server.handleBatchCreate))
	mux.HandleFunc("/admin/seva/batch/mark-transferred", server.adminOnly(server.handleBatchTransferred))
	mux.HandleFunc("/admin/seva/batches", server.adminOnly(server.handleBatchList))
	mux.HandleFunc("/admin/seva-media/add", server.adminOnly(server.handleMediaAdd))
	mux.HandleFunc("/admin/seva-media/pool-stats", server.adminOnly(server.handleMediaStats))
	mux.HandleFunc("/admin/migrate", server.adminOnly(server.handleMigrate))

	handler := mountWithBasePath(server.basePath, mux)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}

	return server
}

// SetDependencies makes dependencies accessible to handlers.
func (s *Server) SetDependencies(deps Dependencies) {
	s.deps = deps
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

// handleImpact serves the public aggregate scoreboard, rate limited per
// client IP on top of the service's own cache.
func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Impact == nil {
		http.Error(w, "impact service unavailable", http.StatusServiceUnavailable)
		return
	}

	if s.deps.Redis != nil {
		allowed, err := s.deps.Redis.Allow(r.Context(), "rate:impact:"+clientIP(r), impactRateWindow)
		if err != nil {
			s.logger.Warn("impact rate limit check failed", "error", err)
		} else if !allowed {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
	}

	totals, err := s.deps.Impact.Totals(r.Context())
	if err != nil {
		s.logger.Error("failed loading impact totals", "error", err)
		http.Error(w, "failed loading impact totals", http.StatusInternalServerError)
		return
	}
	writeJSON(w, totals)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		if r.URL.RawPath != "" {
			rawTrimmed := strings.TrimPrefix(r.URL.RawPath, basePath)
			if rawTrimmed == "" {
				rawTrimmed = "/"
			}
			r.URL.RawPath = rawTrimmed
		}
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}

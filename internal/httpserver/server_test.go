package httpserver

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"bot-sankalp/internal/metrics"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer(adminKey string) *Server {
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	srv := New(":0", logger, metrics.Registry("test"), Handlers{}, "")
	srv.SetDependencies(Dependencies{AdminKey: adminKey})
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer("secret")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestAdminRequiresKey(t *testing.T) {
	srv := newTestServer("secret")

	req := httptest.NewRequest(http.MethodPost, "/admin/broadcast/weekly-sankalp", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The key is never accepted via query string.
	req = httptest.NewRequest(http.MethodPost, "/admin/broadcast/weekly-sankalp?admin_key=secret", nil)
	rec = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAcceptsHeaderAndCookie(t *testing.T) {
	srv := newTestServer("secret")

	req := httptest.NewRequest(http.MethodPost, "/admin/broadcast/weekly-sankalp", nil)
	req.Header.Set("X-Admin-Key", "secret")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	// Authenticated; workers are not wired in this test.
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/broadcast/weekly-sankalp", nil)
	req.AddCookie(&http.Cookie{Name: "admin_key", Value: "secret"})
	rec = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminDisabledWithoutKey(t *testing.T) {
	srv := newTestServer("")
	req := httptest.NewRequest(http.MethodPost, "/admin/migrate", nil)
	req.Header.Set("X-Admin-Key", "anything")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBasePathMount(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	srv := New(":0", logger, metrics.Registry("test"), Handlers{}, "/bot")

	req := httptest.NewRequest(http.MethodGet, "/bot/healthz", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/storebotdev/storebot-go/internal/access"
	"github.com/storebotdev/storebot-go/internal/api"
	"github.com/storebotdev/storebot-go/internal/broadcast"
	"github.com/storebotdev/storebot-go/internal/cache/memory"
	"github.com/storebotdev/storebot-go/internal/config"
	"github.com/storebotdev/storebot-go/internal/identity"
	"github.com/storebotdev/storebot-go/internal/logutil"
	"github.com/storebotdev/storebot-go/internal/ratelimit"
	"github.com/storebotdev/storebot-go/internal/store"
	_ "github.com/storebotdev/storebot-go/internal/store/json"
	"github.com/storebotdev/storebot-go/internal/users"
)

type nopNotifier struct{}

func (nopNotifier) Send(ctx context.Context, recipient string, msg broadcast.OutgoingMessage) (int64, error) {
	return 1, nil
}

func (nopNotifier) Edit(ctx context.Context, recipient string, messageID int64, msg broadcast.OutgoingMessage) error {
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	driver, err := store.New(&store.DriverConfig{Driver: "json", DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := driver.Init(context.Background()); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { driver.Close() })

	adminAuth, err := identity.NewAdminAuth("admin", "test-password", nil)
	if err != nil {
		t.Fatalf("failed to create admin auth: %v", err)
	}

	gate := access.NewGate(driver.(store.AuthStore), nil, nil)
	registry := users.NewRegistry(driver.(store.UserStore), nil)
	cfg := &config.Config{
		ListenAddr: ":0",
		Telegram:   config.TelegramConfig{OperatorIDs: []string{"1"}},
		TLS:        config.TLSConfig{Mode: "off"},
	}

	limiterCache := memory.New(time.Minute, 0)
	t.Cleanup(func() { limiterCache.Close() })

	deps := &Deps{
		Issuer:      access.NewIssuer(driver.(store.CodeStore), 24*time.Hour, nil),
		Gate:        gate,
		Registry:    registry,
		Distributor: broadcast.NewDistributor(driver.(store.BroadcastStore), broadcast.NewAudience(registry, gate), nopNotifier{}, nil),
		AdminAuth:   adminAuth,
		SessionRepo: identity.NewMemorySessionRepo(),
		LoginLimiter: ratelimit.New(limiterCache, &ratelimit.Config{
			RequestsPerWindow: 3,
			Window:            time.Minute,
			KeyPrefix:         "ratelimit:login:",
		}),
	}

	s, err := New(cfg, logutil.Noop(), deps)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return s
}

func login(t *testing.T, s *Server) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "test-password"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}

	var resp api.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	return resp.Token
}

func TestIsAuthRequired(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/api/healthz", false},
		{"/api/auth/login", false},
		{"/api/auth/logout", true},
		{"/api/access-codes", true},
		{"/api/users", true},
		{"/api/gate", true},
		{"/api/broadcasts", true},
		{"/unknown", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsAuthRequired(tt.path); got != tt.want {
				t.Errorf("IsAuthRequired(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestHealthzIsPublic(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestProtectedEndpointRejectsMissingToken(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var envelope api.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if envelope.Error.ReasonCode != api.ReasonUnauthenticated {
		t.Errorf("expected reason %q, got %q", api.ReasonUnauthenticated, envelope.Error.ReasonCode)
	}
}

func TestLoginThenAccessProtectedEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	s := newTestServer(t)

	session, err := s.deps.SessionRepo.Create(context.Background(), "admin", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var envelope api.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.ReasonCode != api.ReasonSessionExpired {
		t.Errorf("expected reason %q, got %q", api.ReasonSessionExpired, envelope.Error.ReasonCode)
	}
}

func TestLoginThrottledPerClientIP(t *testing.T) {
	s := newTestServer(t)

	attempt := func(remoteAddr string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		if rec := attempt("192.0.2.10:4000"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}

	rec := attempt("192.0.2.10:4000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after quota, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on throttled response")
	}
	var envelope api.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.ReasonCode != api.ReasonRateLimited {
		t.Errorf("expected reason %q, got %q", api.ReasonRateLimited, envelope.Error.ReasonCode)
	}

	// Another client keeps its own quota.
	if rec := attempt("192.0.2.99:4000"); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected other client unaffected, got %d", rec.Code)
	}
}

func TestValidateDeps(t *testing.T) {
	if err := validateDeps(nil); err == nil {
		t.Error("expected error for nil deps")
	}
	if err := validateDeps(&Deps{}); err == nil {
		t.Error("expected error for empty deps")
	}
}

func TestTrustedProxies(t *testing.T) {
	tp := NewTrustedProxies([]string{"10.0.0.0/8"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.5")
	if got := tp.GetClientIPString(req); got != "203.0.113.7" {
		t.Errorf("trusted proxy: expected forwarded IP, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.9:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	if got := tp.GetClientIPString(req); got != "198.51.100.9" {
		t.Errorf("untrusted proxy: expected direct IP, got %q", got)
	}
}

func TestTLSManagerSelfSigned(t *testing.T) {
	dir := t.TempDir()
	m := NewTLSManager(&config.TLSConfig{Mode: "selfsigned", SelfSignedDir: dir}, logutil.Noop())

	cfg, err := m.GetTLSConfig("localhost")
	if err != nil {
		t.Fatalf("failed to generate self-signed cert: %v", err)
	}
	if cfg == nil || len(cfg.Certificates) != 1 {
		t.Fatal("expected a TLS config with one certificate")
	}

	// Second call loads the generated files instead of regenerating.
	cfg2, err := m.GetTLSConfig("localhost")
	if err != nil {
		t.Fatalf("failed to load self-signed cert: %v", err)
	}
	if cfg2 == nil || len(cfg2.Certificates) != 1 {
		t.Fatal("expected the persisted certificate to load")
	}
}

func TestTLSManagerOff(t *testing.T) {
	m := NewTLSManager(&config.TLSConfig{Mode: "off"}, logutil.Noop())
	cfg, err := m.GetTLSConfig("localhost")
	if err != nil {
		t.Fatal(err)
	}
	if cfg != nil {
		t.Error("expected nil TLS config for mode off")
	}
}

func TestTLSManagerStaticMissingFiles(t *testing.T) {
	m := NewTLSManager(&config.TLSConfig{Mode: "static"}, logutil.Noop())
	if _, err := m.GetTLSConfig("localhost"); err == nil {
		t.Error("expected error for static mode without cert files")
	}
}

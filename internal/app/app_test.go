package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserve/fieldserve/internal/credential"
	"github.com/fieldserve/fieldserve/internal/observability"
	"github.com/fieldserve/fieldserve/internal/resilience"
	"github.com/fieldserve/fieldserve/internal/trust"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, trust.ModeHeaders, cfg.Trust())
	assert.Equal(t, resilience.DefaultSettings(), cfg.BreakerDefaults())
	assert.Equal(t, time.Hour, cfg.CredentialTTL)
	assert.Len(t, cfg.Upstreams(), 6)
	assert.False(t, cfg.IsProduction())
	assert.ErrorIs(t, cfg.RequireCredentialSecret(), ErrConfiguration)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Run("unknown trust mode", func(t *testing.T) {
		t.Setenv("TRUST_MODE", "mtls")
		_, err := LoadConfig()
		assert.ErrorIs(t, err, ErrConfiguration)
	})
	t.Run("signed mode without secret", func(t *testing.T) {
		t.Setenv("TRUST_MODE", "signed")
		_, err := LoadConfig()
		assert.ErrorIs(t, err, ErrConfiguration)
	})
	t.Run("zero breaker threshold", func(t *testing.T) {
		t.Setenv("BREAKER_FAILURE_THRESHOLD", "0")
		_, err := LoadConfig()
		assert.ErrorIs(t, err, ErrConfiguration)
	})
	t.Run("unparsable duration", func(t *testing.T) {
		t.Setenv("BREAKER_COOLDOWN", "soon")
		_, err := LoadConfig()
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestBreakerOptionsReadPerTargetOverrides(t *testing.T) {
	t.Setenv("BREAKER_CATALOG_FAILURE_THRESHOLD", "2")
	t.Setenv("BREAKER_CATALOG_TIMEOUT", "250ms")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	opts, err := cfg.BreakerOptions("catalog", "technicians")
	require.NoError(t, err)
	registry, err := resilience.NewRegistry("requests", cfg.BreakerDefaults(), opts...)
	require.NoError(t, err)

	catalog := registry.SettingsFor("catalog")
	assert.Equal(t, 2, catalog.FailureThreshold)
	assert.Equal(t, 250*time.Millisecond, catalog.Timeout)
	assert.Equal(t, 30*time.Second, catalog.Cooldown)
	assert.Equal(t, resilience.DefaultSettings(), registry.SettingsFor("technicians"))
}

func TestBreakerOptionsIgnoreUnprefixedNames(t *testing.T) {
	t.Setenv("TIMEOUT", "1ms")
	t.Setenv("COOLDOWN", "1ms")
	t.Setenv("FAILURE_THRESHOLD", "1")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	opts, err := cfg.BreakerOptions("catalog")
	require.NoError(t, err)
	registry, err := resilience.NewRegistry("requests", cfg.BreakerDefaults(), opts...)
	require.NoError(t, err)
	assert.Equal(t, resilience.DefaultSettings(), registry.SettingsFor("catalog"))
}

func TestBreakerOptionsRejectInvalidOverride(t *testing.T) {
	t.Setenv("BREAKER_TECHNICIANS_COOLDOWN", "-1s")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	_, err = cfg.BreakerOptions("technicians")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSignedModeBuildsMatchingPropagatorAndVerifier(t *testing.T) {
	t.Setenv("TRUST_MODE", "signed")
	t.Setenv("TRUST_ASSERTION_SECRET", testSecret)
	cfg, err := LoadConfig()
	require.NoError(t, err)

	propagator, err := NewPropagator(cfg)
	require.NoError(t, err)
	verifier, err := NewVerifier(cfg, "customers")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
	require.NoError(t, propagator.Forward(req.Header, trust.RequestIdentity{UserID: "u-1", Role: "CUSTOMER"}, "customers"))
	id, err := verifier.Verify(req)
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.UserID)
}

func TestNewAuthoritySharesRevocationsThroughRedis(t *testing.T) {
	t.Setenv("CREDENTIAL_SECRET", testSecret)
	cfg, err := LoadConfig()
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	identity, err := NewAuthority(cfg, client)
	require.NoError(t, err)
	edge, err := NewAuthority(cfg, client)
	require.NoError(t, err)

	cred, err := identity.Issue(credential.ClaimSet{Subject: "a@b.io", UserID: "u-1", Role: "ADMIN"})
	require.NoError(t, err)
	ctx := context.Background()
	_, err = edge.Validate(ctx, cred.Token)
	require.NoError(t, err)

	require.NoError(t, identity.Revoke(ctx, cred.Claims))
	_, err = edge.Validate(ctx, cred.Token)
	assert.Equal(t, credential.KindRevoked, credential.KindOf(err))
}

func TestNewAuthorityRequiresSecret(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	_, err = NewAuthority(cfg, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceRouterRebuildsIdentity(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	var seen trust.RequestIdentity
	router := NewRouter(RouterParams{
		Logger:  quietLogger(),
		Config:  cfg,
		Metrics: observability.NewMetrics(),
		Mount: func(r chi.Router) {
			r.Get("/api/whoami", func(w http.ResponseWriter, r *http.Request) {
				seen = trust.FromContext(r.Context())
				w.WriteHeader(http.StatusNoContent)
			})
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set(trust.HeaderUserID, "u-7")
	req.Header.Set(trust.HeaderUserRole, "TECHNICIAN")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, trust.RequestIdentity{UserID: "u-7", Role: "TECHNICIAN"}, seen)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "fieldserve_http_requests_total")
}

func TestEdgeRouterAnswersCORSPreflight(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.CORSAllowedOrigins = []string{"https://app.fieldserve.test"}

	router := NewRouter(RouterParams{Logger: quietLogger(), Config: cfg, Edge: true})
	req := httptest.NewRequest(http.MethodOptions, "/api/customers", nil)
	req.Header.Set("Origin", "https://app.fieldserve.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, "https://app.fieldserve.test", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestEdgeRouterRateLimits(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.GatewayRateLimit = 2

	router := NewRouter(RouterParams{Logger: quietLogger(), Config: cfg, Edge: true})
	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestEdgeRateLimitIgnoresForwardedFor(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.GatewayRateLimit = 2

	router := NewRouter(RouterParams{Logger: quietLogger(), Config: cfg, Edge: true})
	codes := make([]int, 0, 3)
	for i := range 3 {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestEdgeTrustsForwardedForWhenConfigured(t *testing.T) {
	t.Setenv("GATEWAY_TRUST_PROXY_HEADERS", "true")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.GatewayRateLimit = 1

	router := NewRouter(RouterParams{Logger: quietLogger(), Config: cfg, Edge: true})
	for i := range 3 {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.2:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, "client %d", i)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.AppAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, cfg, quietLogger(), http.NotFoundHandler()) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

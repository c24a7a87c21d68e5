package gateway

import (
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserve/fieldserve/internal/credential"
	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/trust"
)

type capturedRequest struct {
	path    string
	headers http.Header
}

func upstreamRecorder(t *testing.T, sink chan<- capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sink <- capturedRequest{path: r.URL.Path, headers: r.Header.Clone()}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type edge struct {
	handler   http.Handler
	authority *credential.Authority
	captured  chan capturedRequest
}

func newEdge(t *testing.T, propagator *trust.Propagator, override map[string]string) *edge {
	t.Helper()
	captured := make(chan capturedRequest, 8)
	srv := upstreamRecorder(t, captured)
	services := map[string]string{}
	for _, route := range DefaultRoutes() {
		services[route.Service] = srv.URL
	}
	for name, url := range override {
		services[name] = url
	}
	authority, err := credential.NewAuthority([]byte(gateSecret))
	require.NoError(t, err)
	policy, err := DefaultPolicy()
	require.NoError(t, err)
	proxy, err := NewProxy(DefaultRoutes(), services, propagator, nil)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	Mount(r, NewGate(policy, authority, nil, nil), proxy)
	return &edge{handler: r, authority: authority, captured: captured}
}

func (e *edge) next(t *testing.T) capturedRequest {
	t.Helper()
	select {
	case c := <-e.captured:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("upstream was not called")
		return capturedRequest{}
	}
}

func TestNewProxyRequiresUpstreams(t *testing.T) {
	_, err := NewProxy(DefaultRoutes(), map[string]string{"identity": "http://127.0.0.1:1"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	_, err = NewProxy([]Route{{Prefix: "/api/x", Service: "x"}}, map[string]string{"x": "not a url"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

// Whatever trust headers a client sends, the upstream sees exactly the
// gate's principal, or no identity at all on public routes.
func TestProxyOverwritesClientTrustHeaders(t *testing.T) {
	e := newEdge(t, trust.NewPropagator(nil), nil)
	rng := rand.New(rand.NewSource(11))
	roles := []string{"ADMIN", "MANAGER", "TECHNICIAN", "CUSTOMER"}

	for i := range 50 {
		userID := "user-" + string(rune('a'+i%26))
		role := roles[rng.Intn(len(roles))]
		cred, err := e.authority.Issue(credential.ClaimSet{Subject: "x@y.io", UserID: userID, Role: role})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/requests/r-1", nil)
		req.Header.Set("Authorization", "Bearer "+cred.Token)
		req.Header.Set(trust.HeaderUserID, "forged-"+userID)
		req.Header.Set(trust.HeaderUserRole, "ADMIN")
		req.Header.Add(trust.HeaderUserRole, "MANAGER")
		req.Header.Set(trust.HeaderAssertion, "forged")
		rr := httptest.NewRecorder()
		e.handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)

		got := e.next(t)
		assert.Equal(t, []string{userID}, got.headers.Values(trust.HeaderUserID))
		assert.Equal(t, []string{role}, got.headers.Values(trust.HeaderUserRole))
		assert.Empty(t, got.headers.Get(trust.HeaderAssertion))
		assert.NotEmpty(t, got.headers.Get(middleware.RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.Header.Set(trust.HeaderUserID, "forged")
	req.Header.Set(trust.HeaderUserRole, "ADMIN")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	got := e.next(t)
	assert.Empty(t, got.headers.Values(trust.HeaderUserID))
	assert.Empty(t, got.headers.Values(trust.HeaderUserRole))
}

func TestProxyForwardsCleanedPath(t *testing.T) {
	e := newEdge(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/catalog/./items/../item-1", nil)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/api/catalog/item-1", e.next(t).path)
}

func TestProxyUnknownPrefix(t *testing.T) {
	e := newEdge(t, nil, nil)
	cred, err := e.authority.Issue(credential.ClaimSet{UserID: "u-1", Role: "ADMIN"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/unknown/thing", nil)
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, httpx.ErrNotFound.Error(), bodyError(t, rr))

	// A prefix only matches on a segment boundary.
	req = httptest.NewRequest(http.MethodGet, "/api/catalogue", nil)
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	rr = httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestProxyUpstreamDown(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	e := newEdge(t, nil, map[string]string{"catalog": deadURL})
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, httpx.MessageUnavailable, bodyError(t, rr))
}

func TestProxySignedMode(t *testing.T) {
	secret := []byte("internal-assertion-secret-0123456789")
	signer, err := trust.NewAssertionSigner(secret, 0, nil)
	require.NoError(t, err)
	e := newEdge(t, trust.NewPropagator(signer), nil)

	cred, err := e.authority.Issue(credential.ClaimSet{UserID: "u-5", Role: "TECHNICIAN"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/technicians", nil)
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	got := e.next(t)
	inbound := httptest.NewRequest(http.MethodGet, got.path, nil)
	inbound.Header = got.headers

	verifier, err := trust.NewAssertionVerifier(secret, "technicians", nil)
	require.NoError(t, err)
	id, err := verifier.Verify(inbound)
	require.NoError(t, err)
	assert.Equal(t, trust.RequestIdentity{UserID: "u-5", Role: "TECHNICIAN"}, id)

	other, err := trust.NewAssertionVerifier(secret, "customers", nil)
	require.NoError(t, err)
	_, err = other.Verify(inbound)
	assert.ErrorIs(t, err, trust.ErrAssertionInvalid)
}

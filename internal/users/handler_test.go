package users_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldserve/fieldserve/internal/credential"
	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/trust"
	"github.com/fieldserve/fieldserve/internal/users"
	_ "github.com/fieldserve/fieldserve/testing"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	authority, err := credential.NewAuthority([]byte("handler-secret-handler-secret-0123"),
		credential.WithRevocations(credential.NewMemoryRevocationList()))
	require.NoError(t, err)
	service := users.NewService(users.NewMemoryRepository(), authority, users.WithHashCost(bcrypt.MinCost))
	r := chi.NewRouter()
	r.Use(trust.Middleware(trust.HeaderVerifier{}, nil))
	users.NewHandler(nil, service).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, id *trust.RequestIdentity, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if id != nil {
		trust.Outbound(req.Header, *id)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error
}

func TestRegisterLoginMeFlow(t *testing.T) {
	h := newRouter(t)

	rr := do(t, h, http.MethodPost, "/api/auth/register", `{"email":"ada@example.com","password":"correct-horse"}`, nil, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created users.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "CUSTOMER", created.Role)
	assert.NotContains(t, rr.Body.String(), "hash")

	rr = do(t, h, http.MethodPost, "/api/auth/login", `{"email":"ada@example.com","password":"correct-horse"}`, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var login struct {
		Token string     `json:"token"`
		User  users.View `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &login))
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, created.ID, login.User.ID)

	id := trust.RequestIdentity{UserID: created.ID, Role: "CUSTOMER"}
	rr = do(t, h, http.MethodGet, "/api/auth/me", "", &id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ada@example.com")

	rr = do(t, h, http.MethodPost, "/api/auth/logout", "", &id, login.Token)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/auth/refresh", `{"token":"`+login.Token+`"}`, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, httpx.MessageInvalidToken, errorMessage(t, rr))
}

func TestLoginFailureMessage(t *testing.T) {
	h := newRouter(t)
	rr := do(t, h, http.MethodPost, "/api/auth/login", `{"email":"ghost@example.com","password":"whatever"}`, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, httpx.MessageInvalidCredentials, errorMessage(t, rr))

	rr = do(t, h, http.MethodPost, "/api/auth/register", `{"email":"not-an-email","password":"short"}`, nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProtectedRoutes(t *testing.T) {
	h := newRouter(t)

	rr := do(t, h, http.MethodGet, "/api/auth/me", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	customer := trust.RequestIdentity{UserID: "c-1", Role: "CUSTOMER"}
	rr = do(t, h, http.MethodGet, "/api/users/", "", &customer, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, httpx.MessageAccessDenied, errorMessage(t, rr))

	manager := trust.RequestIdentity{UserID: "m-1", Role: "MANAGER"}
	rr = do(t, h, http.MethodPost, "/api/users/", `{"email":"t@example.com","password":"initial-pass","role":"TECHNICIAN"}`, &manager, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	root := trust.RequestIdentity{UserID: "a-1", Role: "ADMIN"}
	rr = do(t, h, http.MethodPost, "/api/users/", `{"email":"t@example.com","password":"initial-pass","role":"TECHNICIAN"}`, &root, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"needsPasswordChange":true`)

	rr = do(t, h, http.MethodGet, "/api/users/", "", &manager, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "t@example.com")
}

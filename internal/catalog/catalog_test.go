package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserve/fieldserve/internal/trust"
)

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(trust.Middleware(trust.HeaderVerifier{}, nil))
	NewHandler(nil, NewStore(DefaultItems()...)).MountRoutes(r)
	return r
}

func do(h http.Handler, method, path, body string, id trust.RequestIdentity) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	trust.Outbound(req.Header, id)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCatalogReadsArePublic(t *testing.T) {
	h := newRouter()
	rr := do(h, http.MethodGet, "/api/catalog", "", trust.RequestIdentity{})
	require.Equal(t, http.StatusOK, rr.Code)
	var items []Item
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &items))
	require.Len(t, items, 3)
	assert.Equal(t, "Electrical inspection", items[0].Name)

	rr = do(h, http.MethodGet, "/api/catalog/hvac-service", "", trust.RequestIdentity{})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/catalog/nope", "", trust.RequestIdentity{}).Code)
}

func TestCatalogCreateIsAdminOnly(t *testing.T) {
	h := newRouter()
	body := `{"name":"Roof inspection","basePriceCents":19900}`

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/api/catalog", body, trust.RequestIdentity{}).Code)
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodPost, "/api/catalog", body, trust.RequestIdentity{UserID: "m", Role: "MANAGER"}).Code)

	admin := trust.RequestIdentity{UserID: "a", Role: "ADMIN"}
	rr := do(h, http.MethodPost, "/api/catalog", body, admin)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var item Item
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &item))
	assert.Equal(t, int64(19900), item.BasePriceCents)

	assert.Equal(t, http.StatusConflict, do(h, http.MethodPost, "/api/catalog", `{"name":"roof inspection"}`, admin).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/catalog", `{"name":"x","basePriceCents":-1}`, admin).Code)
}

package gateway

import (
	"fmt"
	"math/rand"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserve/fieldserve/internal/principal"
)

func TestNewPolicyRejectsBadTables(t *testing.T) {
	admin := []principal.Role{principal.RoleAdmin}
	cases := map[string][]Rule{
		"relative pattern":     {{Pattern: "api/x", Tier: TierPublic}},
		"empty segment":        {{Pattern: "/api//x", Tier: TierPublic}},
		"inner wildcard":       {{Pattern: "/api/*/x", Tier: TierPublic}},
		"partial wildcard":     {{Pattern: "/api/x*", Tier: TierPublic}},
		"empty param":          {{Pattern: "/api/{}", Tier: TierPublic}},
		"restricted no roles":  {{Pattern: "/api/x", Tier: TierRoleRestricted}},
		"public with roles":    {{Pattern: "/api/x", Tier: TierPublic, Roles: admin}},
		"unknown role":         {{Pattern: "/api/x", Tier: TierRoleRestricted, Roles: []principal.Role{principal.RoleUnknown}}},
		"unknown tier":         {{Pattern: "/api/x", Tier: Tier(42)}},
		"duplicate":            {{Method: "GET", Pattern: "/api/x", Tier: TierPublic}, {Method: "get", Pattern: "/api/x", Tier: TierAuthenticated}},
		"duplicate param name": {{Pattern: "/api/{a}", Tier: TierPublic}, {Method: "*", Pattern: "/api/{b}", Tier: TierAuthenticated}},
	}
	for name, rules := range cases {
		_, err := NewPolicy(rules)
		assert.ErrorIs(t, err, ErrInvalidPolicy, name)
	}
}

func TestMostSpecificRuleWins(t *testing.T) {
	admin := []principal.Role{principal.RoleAdmin}
	policy, err := NewPolicy([]Rule{
		{Pattern: "/api/*", Tier: TierPublic},
		{Pattern: "/api/items/{id}", Tier: TierAuthenticated},
		{Pattern: "/api/items/special", Tier: TierRoleRestricted, Roles: admin},
		{Method: http.MethodDelete, Pattern: "/api/items/{id}", Tier: TierRoleRestricted, Roles: admin},
		{Pattern: "/api/items/*", Tier: TierRoleRestricted, Roles: []principal.Role{principal.RoleManager}},
		{Pattern: "/api/items", Tier: TierAuthenticated, AllowPasswordChange: true},
	})
	require.NoError(t, err)

	cases := []struct {
		method, path, pattern string
	}{
		{http.MethodGet, "/api/items/special", "/api/items/special"},
		{http.MethodGet, "/api/items/42", "/api/items/{id}"},
		{http.MethodDelete, "/api/items/42", "/api/items/{id}"},
		{http.MethodGet, "/api/items/42/parts", "/api/items/*"},
		{http.MethodGet, "/api/items", "/api/items"},
		{http.MethodGet, "/api/other", "/api/*"},
		{http.MethodGet, "/api", "/api/*"},
		{http.MethodGet, "/elsewhere", ""},
	}
	for _, tc := range cases {
		d := policy.Lookup(tc.method, tc.path)
		assert.Equal(t, tc.pattern, d.Pattern, "%s %s", tc.method, tc.path)
	}

	del := policy.Lookup(http.MethodDelete, "/api/items/42")
	assert.Equal(t, TierRoleRestricted, del.Tier)
	assert.Equal(t, admin, del.Roles)
	assert.Equal(t, TierAuthenticated, policy.Lookup(http.MethodGet, "/api/items/42").Tier)
}

func TestUnmatchedDefaultsToAuthenticated(t *testing.T) {
	policy, err := NewPolicy(nil)
	require.NoError(t, err)
	d := policy.Lookup(http.MethodGet, "/anything")
	assert.Equal(t, TierAuthenticated, d.Tier)
	assert.False(t, d.AllowPasswordChange)
	assert.True(t, d.Allows(principal.RoleCustomer))
}

func TestLookupCleansPath(t *testing.T) {
	policy, err := DefaultPolicy()
	require.NoError(t, err)

	assert.Equal(t, TierPublic, policy.Lookup(http.MethodGet, "/api/catalog/42").Tier)
	escaped := policy.Lookup(http.MethodGet, "/api/catalog/../users/")
	assert.Equal(t, TierRoleRestricted, escaped.Tier)
	assert.Equal(t, "/api/users/*", escaped.Pattern)
	assert.Equal(t, TierPublic, policy.Lookup("post", "//api//auth/login/").Tier)
}

func TestDefaultPolicyPublicAllowList(t *testing.T) {
	policy, err := DefaultPolicy()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"GET /api/catalog/*",
		"GET /healthz",
		"POST /api/auth/login",
		"POST /api/auth/refresh",
		"POST /api/auth/register",
	}, policy.PublicRoutes())

	assert.Equal(t, TierRoleRestricted, policy.Lookup(http.MethodPost, "/api/catalog").Tier)
	assert.Equal(t, TierAuthenticated, policy.Lookup(http.MethodGet, "/api/requests/abc").Tier)
	assert.Equal(t, "/api/requests/breakers", policy.Lookup(http.MethodGet, "/api/requests/breakers").Pattern)
	assert.True(t, policy.Lookup(http.MethodPost, "/api/auth/password").AllowPasswordChange)
}

func TestHeadIsDecidedAsGet(t *testing.T) {
	policy, err := DefaultPolicy()
	require.NoError(t, err)

	for _, path := range []string{"/api/catalog", "/api/catalog/hvac-service", "/healthz", "/api/requests/breakers", "/api/customers"} {
		assert.Equal(t, policy.Lookup(http.MethodGet, path), policy.Lookup(http.MethodHead, path), path)
	}
	assert.Equal(t, TierPublic, policy.Lookup("head", "/api/catalog").Tier)
	assert.Equal(t, TierAuthenticated, policy.Lookup(http.MethodHead, "/api/auth/login").Tier)
}

// Lookup is a pure function of (method, path): the memoised answer equals a
// fresh evaluation for arbitrary inputs, in any order.
func TestLookupIsPure(t *testing.T) {
	policy, err := DefaultPolicy()
	require.NoError(t, err)
	fresh, err := DefaultPolicy()
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	segments := []string{"api", "auth", "login", "users", "catalog", "requests", "42", "assign", "status", "..", ""}
	methods := []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}
	for i := range 2000 {
		path := ""
		for range rng.Intn(5) + 1 {
			path += "/" + segments[rng.Intn(len(segments))]
		}
		method := methods[rng.Intn(len(methods))]
		first := policy.Lookup(method, path)
		again := policy.Lookup(method, path)
		assert.Equal(t, first, again, fmt.Sprintf("iteration %d", i))
		assert.Equal(t, fresh.lookup(method, CleanPath(path)), first, "%s %s", method, path)
	}
}

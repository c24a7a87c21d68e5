// Package gateway is the edge: it authenticates every inbound request,
// applies the route policy and proxies to the internal services.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fieldserve/fieldserve/internal/principal"
)

// ErrInvalidPolicy marks a route table that cannot be compiled. It is a
// startup configuration error.
var ErrInvalidPolicy = errors.New("gateway: invalid policy")

const defaultDecisionCacheSize = 4096

// Tier classifies a route.
type Tier int

const (
	TierAuthenticated Tier = iota
	TierPublic
	TierRoleRestricted
)

func (t Tier) String() string {
	switch t {
	case TierPublic:
		return "public"
	case TierAuthenticated:
		return "authenticated"
	case TierRoleRestricted:
		return "role_restricted"
	default:
		return "unknown"
	}
}

// Rule is one row of the route table. Method "" or "*" matches any method.
// Pattern segments are literals, {name} parameters matching exactly one
// segment, or a final * matching zero or more remaining segments.
type Rule struct {
	Method              string
	Pattern             string
	Tier                Tier
	Roles               []principal.Role
	AllowPasswordChange bool
}

// Decision is the policy outcome for one (method, path).
type Decision struct {
	Tier                Tier
	Roles               []principal.Role
	AllowPasswordChange bool
	// Pattern is the matching rule's pattern, empty for the default.
	Pattern string
}

// Allows reports whether role satisfies a role restriction.
func (d Decision) Allows(role principal.Role) bool {
	if d.Tier != TierRoleRestricted {
		return true
	}
	return role.In(d.Roles...)
}

type segmentKind int

const (
	segLiteral segmentKind = iota
	segParam
	segWildcard
)

type segment struct {
	kind  segmentKind
	value string
}

type compiledRule struct {
	rule     Rule
	method   string
	segments []segment
	literals int
	depth    int
	wildcard bool
	order    int
}

func (c compiledRule) shape() string {
	var b strings.Builder
	b.WriteString(c.method)
	b.WriteByte(' ')
	for _, seg := range c.segments {
		b.WriteByte('/')
		switch seg.kind {
		case segLiteral:
			b.WriteString(seg.value)
		case segParam:
			b.WriteString("{}")
		case segWildcard:
			b.WriteByte('*')
		}
	}
	return b.String()
}

// moreSpecific orders rules: more literal segments, then more segments
// (the wildcard not counted), then no wildcard, then method-specific.
func moreSpecific(a, b compiledRule) bool {
	if a.literals != b.literals {
		return a.literals > b.literals
	}
	if a.depth != b.depth {
		return a.depth > b.depth
	}
	if a.wildcard != b.wildcard {
		return !a.wildcard
	}
	if (a.method == "") != (b.method == "") {
		return a.method != ""
	}
	return a.order < b.order
}

func (c compiledRule) match(method string, parts []string) bool {
	if c.method != "" && c.method != method {
		return false
	}
	for i, seg := range c.segments {
		if seg.kind == segWildcard {
			return true
		}
		if i >= len(parts) {
			return false
		}
		if seg.kind == segLiteral && seg.value != parts[i] {
			return false
		}
	}
	return len(parts) == len(c.segments)
}

// Policy is a compiled, immutable route table.
type Policy struct {
	rules []compiledRule
	cache *lru.Cache[string, Decision]
}

// NewPolicy compiles rules. Malformed patterns, role sets on tiers that do
// not use them, empty role sets on restricted routes and duplicate rules
// are rejected.
func NewPolicy(rules []Rule) (*Policy, error) {
	compiled := make([]compiledRule, 0, len(rules))
	seen := make(map[string]string, len(rules))
	for i, rule := range rules {
		c, err := compile(rule, i)
		if err != nil {
			return nil, err
		}
		shape := c.shape()
		if prev, dup := seen[shape]; dup {
			return nil, fmt.Errorf("%w: %s %s duplicates %s", ErrInvalidPolicy, methodLabel(c.method), rule.Pattern, prev)
		}
		seen[shape] = rule.Pattern
		compiled = append(compiled, c)
	}
	sort.SliceStable(compiled, func(i, j int) bool { return moreSpecific(compiled[i], compiled[j]) })

	cache, err := lru.New[string, Decision](defaultDecisionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return &Policy{rules: compiled, cache: cache}, nil
}

func compile(rule Rule, order int) (compiledRule, error) {
	method := strings.ToUpper(strings.TrimSpace(rule.Method))
	if method == "*" {
		method = ""
	}
	if !strings.HasPrefix(rule.Pattern, "/") {
		return compiledRule{}, fmt.Errorf("%w: pattern %q must start with /", ErrInvalidPolicy, rule.Pattern)
	}
	switch rule.Tier {
	case TierPublic, TierAuthenticated:
		if len(rule.Roles) > 0 {
			return compiledRule{}, fmt.Errorf("%w: %s route %q must not list roles", ErrInvalidPolicy, rule.Tier, rule.Pattern)
		}
	case TierRoleRestricted:
		if len(rule.Roles) == 0 {
			return compiledRule{}, fmt.Errorf("%w: restricted route %q has no roles", ErrInvalidPolicy, rule.Pattern)
		}
		for _, role := range rule.Roles {
			if !role.Valid() {
				return compiledRule{}, fmt.Errorf("%w: restricted route %q lists an unknown role", ErrInvalidPolicy, rule.Pattern)
			}
		}
	default:
		return compiledRule{}, fmt.Errorf("%w: route %q has unknown tier %d", ErrInvalidPolicy, rule.Pattern, rule.Tier)
	}

	c := compiledRule{rule: rule, method: method, order: order}
	parts := splitPath(rule.Pattern)
	for i, part := range parts {
		switch {
		case part == "*":
			if i != len(parts)-1 {
				return compiledRule{}, fmt.Errorf("%w: wildcard must be the last segment in %q", ErrInvalidPolicy, rule.Pattern)
			}
			c.wildcard = true
			c.segments = append(c.segments, segment{kind: segWildcard})
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") && len(part) > 2:
			c.depth++
			c.segments = append(c.segments, segment{kind: segParam, value: part[1 : len(part)-1]})
		case part == "" || strings.ContainsAny(part, "{}*"):
			return compiledRule{}, fmt.Errorf("%w: bad segment %q in %q", ErrInvalidPolicy, part, rule.Pattern)
		default:
			c.literals++
			c.depth++
			c.segments = append(c.segments, segment{kind: segLiteral, value: part})
		}
	}
	return c, nil
}

// Lookup returns the decision for method and path. Unmatched routes are
// Authenticated. HEAD is decided as GET. The result depends on nothing
// else, so it is memoised.
func (p *Policy) Lookup(method, rawPath string) Decision {
	method = strings.ToUpper(method)
	if method == http.MethodHead {
		method = http.MethodGet
	}
	cleaned := CleanPath(rawPath)
	key := method + " " + cleaned
	if d, ok := p.cache.Get(key); ok {
		return d
	}
	d := p.lookup(method, cleaned)
	p.cache.Add(key, d)
	return d
}

func (p *Policy) lookup(method, cleaned string) Decision {
	parts := splitPath(cleaned)
	for _, c := range p.rules {
		if c.match(method, parts) {
			return Decision{
				Tier:                c.rule.Tier,
				Roles:               c.rule.Roles,
				AllowPasswordChange: c.rule.AllowPasswordChange,
				Pattern:             c.rule.Pattern,
			}
		}
	}
	return Decision{Tier: TierAuthenticated}
}

// PublicRoutes lists the explicit allow-list.
func (p *Policy) PublicRoutes() []string {
	var out []string
	for _, c := range p.rules {
		if c.rule.Tier == TierPublic {
			out = append(out, methodLabel(c.method)+" "+c.rule.Pattern)
		}
	}
	sort.Strings(out)
	return out
}

// CleanPath resolves dot segments and duplicate slashes so that the policy
// and the upstream see the same path.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func methodLabel(method string) string {
	if method == "" {
		return "*"
	}
	return method
}

var (
	elevated = []principal.Role{principal.RoleAdmin, principal.RoleManager}
	staff    = []principal.Role{principal.RoleAdmin, principal.RoleManager, principal.RoleTechnician}
)

// DefaultRules is the fieldserve route table.
func DefaultRules() []Rule {
	return []Rule{
		{Method: http.MethodPost, Pattern: "/api/auth/login", Tier: TierPublic},
		{Method: http.MethodPost, Pattern: "/api/auth/refresh", Tier: TierPublic},
		{Method: http.MethodPost, Pattern: "/api/auth/register", Tier: TierPublic},
		{Method: http.MethodGet, Pattern: "/api/catalog/*", Tier: TierPublic},
		{Method: http.MethodGet, Pattern: "/healthz", Tier: TierPublic},

		{Method: http.MethodPost, Pattern: "/api/auth/password", Tier: TierAuthenticated, AllowPasswordChange: true},
		{Method: http.MethodPost, Pattern: "/api/auth/logout", Tier: TierAuthenticated, AllowPasswordChange: true},
		{Method: http.MethodGet, Pattern: "/api/auth/me", Tier: TierAuthenticated, AllowPasswordChange: true},

		{Method: http.MethodGet, Pattern: "/api/users/*", Tier: TierRoleRestricted, Roles: elevated},
		{Method: http.MethodPost, Pattern: "/api/users", Tier: TierRoleRestricted, Roles: []principal.Role{principal.RoleAdmin}},

		{Method: http.MethodGet, Pattern: "/api/customers", Tier: TierRoleRestricted, Roles: elevated},
		{Method: http.MethodPost, Pattern: "/api/customers", Tier: TierRoleRestricted, Roles: []principal.Role{principal.RoleCustomer}},

		{Method: http.MethodPost, Pattern: "/api/technicians", Tier: TierRoleRestricted, Roles: elevated},
		{Method: http.MethodPut, Pattern: "/api/technicians/{id}/availability", Tier: TierRoleRestricted, Roles: staff},

		{Method: http.MethodPost, Pattern: "/api/catalog", Tier: TierRoleRestricted, Roles: []principal.Role{principal.RoleAdmin}},

		{Method: http.MethodPost, Pattern: "/api/requests", Tier: TierRoleRestricted, Roles: []principal.Role{principal.RoleCustomer}},
		{Method: http.MethodPost, Pattern: "/api/requests/{id}/assign", Tier: TierRoleRestricted, Roles: elevated},
		{Method: http.MethodPut, Pattern: "/api/requests/{id}/status", Tier: TierRoleRestricted, Roles: staff},
		{Method: http.MethodGet, Pattern: "/api/requests/breakers", Tier: TierRoleRestricted, Roles: []principal.Role{principal.RoleAdmin}},

		{Method: http.MethodPost, Pattern: "/api/notifications", Tier: TierRoleRestricted, Roles: principal.Roles()},
	}
}

// DefaultPolicy compiles DefaultRules.
func DefaultPolicy() (*Policy, error) {
	return NewPolicy(DefaultRules())
}

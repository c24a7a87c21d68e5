package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/principal"
	"github.com/fieldserve/fieldserve/internal/trust"
)

// Route maps a path prefix to a named internal service.
type Route struct {
	Prefix  string
	Service string
}

// DefaultRoutes is the fieldserve prefix table.
func DefaultRoutes() []Route {
	return []Route{
		{Prefix: "/api/auth", Service: "identity"},
		{Prefix: "/api/users", Service: "identity"},
		{Prefix: "/api/customers", Service: "customers"},
		{Prefix: "/api/technicians", Service: "technicians"},
		{Prefix: "/api/catalog", Service: "catalog"},
		{Prefix: "/api/requests", Service: "requests"},
		{Prefix: "/api/notifications", Service: "notifications"},
	}
}

type upstream struct {
	prefix  string
	service string
	proxy   *httputil.ReverseProxy
}

// Proxy forwards authorized requests to the internal services, replacing
// any client supplied trust headers with the gate's Principal.
type Proxy struct {
	upstreams  []upstream
	propagator *trust.Propagator
	logger     *slog.Logger
}

// NewProxy builds one reverse proxy per route. Every service named by a
// route needs a base URL in services.
func NewProxy(routes []Route, services map[string]string, propagator *trust.Propagator, logger *slog.Logger) (*Proxy, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Proxy{propagator: propagator, logger: logger}
	for _, route := range routes {
		raw, ok := services[route.Service]
		if !ok || raw == "" {
			return nil, fmt.Errorf("%w: no upstream URL for service %q", ErrInvalidPolicy, route.Service)
		}
		target, err := url.Parse(raw)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("%w: bad upstream URL %q for %s", ErrInvalidPolicy, raw, route.Service)
		}
		prefix := CleanPath(route.Prefix)
		p.upstreams = append(p.upstreams, upstream{
			prefix:  prefix,
			service: route.Service,
			proxy:   p.reverseProxy(route.Service, target),
		})
	}
	sort.SliceStable(p.upstreams, func(i, j int) bool {
		return len(p.upstreams[i].prefix) > len(p.upstreams[j].prefix)
	})
	return p, nil
}

func (p *Proxy) reverseProxy(service string, target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = CleanPath(pr.In.URL.Path)
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.SetXForwarded()
			if id := middleware.GetReqID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(middleware.RequestIDHeader, id)
			}

			var caller *principal.Principal
			if found, ok := principal.FromContext(pr.In.Context()); ok {
				caller = &found
			}
			if err := p.propagator.Apply(pr.Out.Header, caller, service); err != nil {
				// Forward as anonymous; the service answers 401.
				trust.Strip(pr.Out.Header)
				p.logger.Error("propagate identity", slog.String("service", service), slog.Any("error", err))
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.logger.Warn("upstream unavailable",
				slog.String("service", service),
				slog.String("path", r.URL.Path),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.Any("error", err))
			httpx.Error(w, http.StatusBadGateway, httpx.MessageUnavailable)
		},
	}
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cleaned := CleanPath(r.URL.Path)
	for _, u := range p.upstreams {
		if cleaned == u.prefix || strings.HasPrefix(cleaned, u.prefix+"/") {
			u.proxy.ServeHTTP(w, r)
			return
		}
	}
	httpx.Error(w, http.StatusNotFound, httpx.ErrNotFound.Error())
}

package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/fieldserve/fieldserve/internal/credential"
	"github.com/fieldserve/fieldserve/internal/resilience"
	"github.com/fieldserve/fieldserve/internal/trust"
)

// ErrConfiguration marks startup configuration problems. Processes exit
// non-zero when they see it.
var ErrConfiguration = errors.New("configuration error")

// Config holds runtime configuration shared by every fieldserve binary.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat   string `envconfig:"LOG_FORMAT" default:"pretty"`
	ServiceName string `envconfig:"SERVICE_NAME"`

	CredentialSecret string        `envconfig:"CREDENTIAL_SECRET"`
	CredentialTTL    time.Duration `envconfig:"CREDENTIAL_TTL" default:"1h"`
	CredentialIssuer string        `envconfig:"CREDENTIAL_ISSUER" default:"fieldserve"`

	RedisAddr         string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RevocationEnabled bool   `envconfig:"REVOCATION_ENABLED" default:"true"`

	TrustMode            string        `envconfig:"TRUST_MODE" default:"headers"`
	TrustAssertionSecret string        `envconfig:"TRUST_ASSERTION_SECRET"`
	TrustAssertionTTL    time.Duration `envconfig:"TRUST_ASSERTION_TTL" default:"30s"`

	UpstreamIdentityURL      string   `envconfig:"UPSTREAM_IDENTITY_URL" default:"http://127.0.0.1:8081"`
	UpstreamCustomersURL     string   `envconfig:"UPSTREAM_CUSTOMERS_URL" default:"http://127.0.0.1:8082"`
	UpstreamTechniciansURL   string   `envconfig:"UPSTREAM_TECHNICIANS_URL" default:"http://127.0.0.1:8083"`
	UpstreamCatalogURL       string   `envconfig:"UPSTREAM_CATALOG_URL" default:"http://127.0.0.1:8084"`
	UpstreamRequestsURL      string   `envconfig:"UPSTREAM_REQUESTS_URL" default:"http://127.0.0.1:8085"`
	UpstreamNotificationsURL string   `envconfig:"UPSTREAM_NOTIFICATIONS_URL" default:"http://127.0.0.1:8086"`
	GatewayRateLimit         int      `envconfig:"GATEWAY_RATE_LIMIT" default:"120"`
	GatewayTrustProxyHeaders bool     `envconfig:"GATEWAY_TRUST_PROXY_HEADERS" default:"false"`
	CORSAllowedOrigins       []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,http://127.0.0.1:5173"`

	PeerCatalogURL       string `envconfig:"PEER_CATALOG_URL" default:"http://127.0.0.1:8084"`
	PeerTechniciansURL   string `envconfig:"PEER_TECHNICIANS_URL" default:"http://127.0.0.1:8083"`
	PeerNotificationsURL string `envconfig:"PEER_NOTIFICATIONS_URL" default:"http://127.0.0.1:8086"`

	BreakerFailureThreshold int           `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerCooldown         time.Duration `envconfig:"BREAKER_COOLDOWN" default:"30s"`
	BreakerTimeout          time.Duration `envconfig:"BREAKER_TIMEOUT" default:"2s"`

	PGDSN                  string `envconfig:"PG_DSN"`
	BootstrapAdminEmail    string `envconfig:"BOOTSTRAP_ADMIN_EMAIL" default:"admin@fieldserve.local"`
	BootstrapAdminPassword string `envconfig:"BOOTSTRAP_ADMIN_PASSWORD"`

	NotificationLogKey  string `envconfig:"NOTIFICATION_LOG_KEY" default:"fieldserve:notifications:log"`
	NotificationLogSize int64  `envconfig:"NOTIFICATION_LOG_SIZE" default:"1000"`
	WorkerConcurrency   int    `envconfig:"WORKER_CONCURRENCY" default:"5"`
}

// breakerOverride carries per-target settings. Unset fields stay zero and
// inherit the defaults. Keys are derived with split_words only: an explicit
// envconfig tag would make envconfig fall back to the bare name (TIMEOUT)
// when BREAKER_<TARGET>_TIMEOUT is unset.
type breakerOverride struct {
	FailureThreshold int           `split_words:"true"`
	Cooldown         time.Duration `split_words:"true"`
	Timeout          time.Duration `split_words:"true"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if _, err := trust.ParseMode(cfg.TrustMode); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if cfg.Trust() == trust.ModeSigned && len(cfg.TrustAssertionSecret) < trust.MinAssertionSecretLength {
		return nil, fmt.Errorf("%w: TRUST_ASSERTION_SECRET must be at least %d bytes in signed mode", ErrConfiguration, trust.MinAssertionSecretLength)
	}
	if err := cfg.BreakerDefaults().Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// RequireCredentialSecret is called by the binaries that sign or validate
// credentials.
func (c *Config) RequireCredentialSecret() error {
	if len(c.CredentialSecret) < credential.MinSecretLength {
		return fmt.Errorf("%w: CREDENTIAL_SECRET must be at least %d bytes", ErrConfiguration, credential.MinSecretLength)
	}
	return nil
}

// Trust returns the parsed trust mode.
func (c *Config) Trust() trust.Mode {
	mode, err := trust.ParseMode(c.TrustMode)
	if err != nil {
		return trust.ModeHeaders
	}
	return mode
}

// BreakerDefaults returns the breaker settings applied to every target.
func (c *Config) BreakerDefaults() resilience.Settings {
	return resilience.Settings{
		FailureThreshold: c.BreakerFailureThreshold,
		Cooldown:         c.BreakerCooldown,
		Timeout:          c.BreakerTimeout,
	}
}

// BreakerOptions reads BREAKER_<TARGET>_* overrides for each target and
// returns them as registry options.
func (c *Config) BreakerOptions(targets ...string) ([]resilience.RegistryOption, error) {
	opts := make([]resilience.RegistryOption, 0, len(targets))
	for _, target := range targets {
		var override breakerOverride
		prefix := "BREAKER_" + strings.ToUpper(target)
		if err := envconfig.Process(prefix, &override); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConfiguration, prefix, err)
		}
		settings := resilience.Settings(override)
		if err := c.BreakerDefaults().Merge(settings).Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConfiguration, prefix, err)
		}
		opts = append(opts, resilience.WithTargetSettings(target, settings))
	}
	return opts, nil
}

// Upstreams maps the gateway's service names to their base URLs.
func (c *Config) Upstreams() map[string]string {
	return map[string]string{
		"identity":      c.UpstreamIdentityURL,
		"customers":     c.UpstreamCustomersURL,
		"technicians":   c.UpstreamTechniciansURL,
		"catalog":       c.UpstreamCatalogURL,
		"requests":      c.UpstreamRequestsURL,
		"notifications": c.UpstreamNotificationsURL,
	}
}

package cfg

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Port                     string
	Environment              string
	LogLevel                 string
	DurableURL               string
	DurableTLS               bool
	DurableTLSServerName     string
	DurableTLSCACert         string
	DurableUsername          string
	DurablePassword          Secret
	DurablePasswordSecret    string
	DurableTimeout           time.Duration
	DurableMaxRetries        int
	DurableRetryBackoff      time.Duration
	DurablePingInterval      time.Duration
	FastTierSize             int
	SweepInterval            time.Duration
	PasswordDigest           string
	MaxContentSize           int
	DefaultExpirationMinutes int
	RateLimit                RateLimitCfg
	TrustedProxies           []string
	AllowedOrigins           []string
	ContextTimeout           time.Duration
	ShutdownTimeout          time.Duration
	MetricsUser              string
	MetricsPass              Secret
}

type RateLimitCfg struct {
	RPM   int
	Burst int
}

// Load reads the configuration from the environment. Only parse errors are
// reported here; range checks belong to Validate.
func Load() (*Cfg, error) {
	var e env
	c := &Cfg{
		Port:        e.str("PORT", "8080"),
		Environment: e.str("ENVIRONMENT", "development"),
		LogLevel:    e.str("LOG_LEVEL", "info"),

		DurableURL:            e.str("DURABLE_URL", ""),
		DurableTLS:            e.boolean("DURABLE_TLS", false),
		DurableTLSServerName:  e.str("DURABLE_TLS_SERVER_NAME", ""),
		DurableTLSCACert:      e.str("DURABLE_TLS_CA_CERT", ""),
		DurableUsername:       e.str("DURABLE_USERNAME", ""),
		DurablePassword:       NewSecret(e.str("DURABLE_PASSWORD", "")),
		DurablePasswordSecret: e.str("DURABLE_PASSWORD_SECRET", ""),
		DurableTimeout:        e.duration("DURABLE_TIMEOUT", 2*time.Second),
		DurableMaxRetries:     e.integer("DURABLE_MAX_RETRIES", 2),
		DurableRetryBackoff:   e.duration("DURABLE_RETRY_BACKOFF", 50*time.Millisecond),
		DurablePingInterval:   e.duration("DURABLE_PING_INTERVAL", 10*time.Second),

		FastTierSize:             e.integer("FAST_TIER_SIZE", 10000),
		SweepInterval:            e.duration("SWEEP_INTERVAL", time.Minute),
		PasswordDigest:           e.str("PASSWORD_DIGEST", "sha256"),
		MaxContentSize:           e.integer("MAX_CONTENT_SIZE", 100000),
		DefaultExpirationMinutes: e.integer("DEFAULT_EXPIRATION_MINUTES", 60),

		RateLimit: RateLimitCfg{
			RPM:   e.integer("RATE_LIMIT_RPM", 60),
			Burst: e.integer("RATE_LIMIT_BURST", 10),
		},
		TrustedProxies:  e.list("TRUSTED_PROXIES"),
		AllowedOrigins:  e.list("ALLOWED_ORIGINS"),
		ContextTimeout:  e.duration("CONTEXT_TIMEOUT", 5*time.Second),
		ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 30*time.Second),
		MetricsUser:     e.str("METRICS_USER", ""),
		MetricsPass:     NewSecret(e.str("METRICS_PASS", "")),
	}
	if e.err != nil {
		return nil, e.err
	}
	return c, nil
}
func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	if c.DurableURL != "" {
		switch {
		case strings.HasPrefix(c.DurableURL, "redis://"):
		case strings.HasPrefix(c.DurableURL, "rediss://"):
			if !c.DurableTLS {
				return errors.New("DURABLE_URL uses rediss:// but DURABLE_TLS=false")
			}
		case strings.HasPrefix(c.DurableURL, "sqlite://"):
			if strings.TrimPrefix(c.DurableURL, "sqlite://") == "" {
				return errors.New("DURABLE_URL sqlite:// needs a file path")
			}
		default:
			return errors.New("DURABLE_URL must start with redis://, rediss:// or sqlite://")
		}
	}
	if c.DurableTimeout <= 0 {
		return errors.New("DURABLE_TIMEOUT must be positive")
	}
	if c.DurableTimeout > time.Minute {
		return errors.New("DURABLE_TIMEOUT cannot exceed 1 minute")
	}
	if c.DurableMaxRetries < 0 || c.DurableMaxRetries > 10 {
		return errors.New("DURABLE_MAX_RETRIES must be between 0 and 10")
	}
	if c.DurableRetryBackoff <= 0 || c.DurableRetryBackoff > 5*time.Second {
		return errors.New("DURABLE_RETRY_BACKOFF must be between 0 and 5s")
	}
	if c.DurablePingInterval < time.Second {
		return errors.New("DURABLE_PING_INTERVAL must be at least 1s")
	}
	if c.FastTierSize <= 0 {
		return errors.New("FAST_TIER_SIZE must be positive")
	}
	if c.SweepInterval < time.Second {
		return errors.New("SWEEP_INTERVAL must be at least 1s")
	}
	switch strings.ToLower(c.PasswordDigest) {
	case "sha256", "blake2b", "blake2b-256":
	default:
		return fmt.Errorf("PASSWORD_DIGEST %q is not supported", c.PasswordDigest)
	}
	if c.MaxContentSize <= 0 || c.MaxContentSize > 100000 {
		return errors.New("MAX_CONTENT_SIZE must be between 1 and 100000")
	}
	if c.DefaultExpirationMinutes < 1 || c.DefaultExpirationMinutes > 10080 {
		return errors.New("DEFAULT_EXPIRATION_MINUTES must be between 1 and 10080")
	}
	if c.RateLimit.RPM <= 0 {
		return errors.New("RATE_LIMIT_RPM must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		return errors.New("RATE_LIMIT_BURST must be positive")
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else if net.ParseIP(proxy) == nil {
			return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
		}
	}
	if c.ContextTimeout <= 0 {
		return errors.New("CONTEXT_TIMEOUT must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
	}
	return nil
}
func (c *Cfg) Wipe() {
	c.DurablePassword.Wipe()
	c.MetricsPass.Wipe()
}
// env reads typed values and keeps the first parse error so Load can build
// the whole struct in one expression.
type env struct {
	err error
}

func (e *env) str(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func (e *env) raw(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}
func (e *env) fail(key, kind string, err error) {
	if e.err == nil {
		e.err = errors.Wrapf(err, "invalid %s for %s", kind, key)
	}
}
func (e *env) integer(key string, fallback int) int {
	s, ok := e.raw(key)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		e.fail(key, "integer", err)
		return fallback
	}
	return v
}
func (e *env) duration(key string, fallback time.Duration) time.Duration {
	s, ok := e.raw(key)
	if !ok {
		return fallback
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		e.fail(key, "duration", err)
		return fallback
	}
	return v
}
func (e *env) boolean(key string, fallback bool) bool {
	s, ok := e.raw(key)
	if !ok {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		e.fail(key, "boolean", err)
		return fallback
	}
	return v
}
func (e *env) list(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

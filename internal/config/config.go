package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`
	// PublicBaseURL is the externally reachable origin used when building
	// links handed to clients, such as telemedicine join URLs.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`

	JWTSecret   string `mapstructure:"JWT_SECRET"`
	AuthIssuer  string `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL string `mapstructure:"AUTH_JWKS_URL"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	// Telemedicine session watcher.
	SessionSweepInterval time.Duration `mapstructure:"SESSION_SWEEP_INTERVAL"`
	SessionMaxDuration   time.Duration `mapstructure:"SESSION_MAX_DURATION"`

	// Wearable vendor OAuth.
	WearableRedirectURL string `mapstructure:"WEARABLE_REDIRECT_URL"`

	// Outbound EHR/vendor HTTP calls.
	UpstreamTimeout time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`

	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("SESSION_SWEEP_INTERVAL", "10s")
	v.SetDefault("SESSION_MAX_DURATION", "2h")
	v.SetDefault("UPSTREAM_TIMEOUT", "15s")
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "PUBLIC_BASE_URL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"JWT_SECRET", "AUTH_ISSUER", "AUTH_JWKS_URL",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"SESSION_SWEEP_INTERVAL", "SESSION_MAX_DURATION",
		"WEARABLE_REDIRECT_URL", "UPSTREAM_TIMEOUT", "MIGRATIONS_DIR",
		"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// either a JWT secret (standalone token issuing) or an external issuer must be
// configured so that authentication is enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" && c.AuthIssuer == "" {
		return fmt.Errorf(
			"JWT_SECRET or AUTH_ISSUER must be set when ENV=%q; refusing to start without authentication", c.Env)
	}
	if c.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive, got %s", c.SessionSweepInterval)
	}
	if c.SessionMaxDuration < c.SessionSweepInterval {
		return fmt.Errorf("SESSION_MAX_DURATION (%s) must be at least SESSION_SWEEP_INTERVAL (%s)",
			c.SessionMaxDuration, c.SessionSweepInterval)
	}
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}
	return nil
}

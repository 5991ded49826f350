package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ehr/edops/internal/domain/staffing"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema           string        `mapstructure:"DB_SCHEMA"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience       string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey     string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit          string        `mapstructure:"BODY_LIMIT"`
	BatchBodyLimit     string        `mapstructure:"BATCH_BODY_LIMIT"`
	BatchConcurrency   int           `mapstructure:"BATCH_CONCURRENCY"`
	StaffingPolicyFile string        `mapstructure:"STAFFING_POLICY_FILE"`
	AnalyticsURL       string        `mapstructure:"ANALYTICS_URL"`
	AnalyticsCacheTTL  time.Duration `mapstructure:"ANALYTICS_CACHE_TTL"`
	AlertChannel       string        `mapstructure:"ALERT_CHANNEL"`
	AlertAddress       string        `mapstructure:"ALERT_ADDRESS"`
	TLSEnabled         bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile        string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile         string        `mapstructure:"TLS_KEY_FILE"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA",
	"REDIS_URL", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "CORS_ORIGINS",
	"REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"BATCH_BODY_LIMIT", "BATCH_CONCURRENCY", "STAFFING_POLICY_FILE", "ANALYTICS_URL",
	"ANALYTICS_CACHE_TTL", "ALERT_CHANNEL", "ALERT_ADDRESS", "TLS_ENABLED",
	"TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("BATCH_BODY_LIMIT", "8M")
	v.SetDefault("BATCH_CONCURRENCY", 4)
	v.SetDefault("ANALYTICS_CACHE_TTL", "60s")
	v.SetDefault("ALERT_CHANNEL", "sms")

	// Unmarshal only sees env vars that are bound.
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate refuses configurations that would run without authentication
// outside development or with half-specified TLS and alerting.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY must be set when ENV=%q; "+
			"refusing to start without token verification", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	if c.AlertChannel != "sms" && c.AlertChannel != "email" {
		return fmt.Errorf("ALERT_CHANNEL must be \"sms\" or \"email\", got %q", c.AlertChannel)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be positive, got %d", c.BatchConcurrency)
	}

	return nil
}

type policyFile struct {
	MaxShiftsPerWeek int                       `mapstructure:"max_shifts_per_week"`
	Areas            map[string]map[string]int `mapstructure:"areas"`
}

// LoadStaffingPolicy reads a policy file (YAML, JSON or TOML by extension):
//
//	max_shifts_per_week: 5
//	areas:
//	  Resuscitation: {doctor: 2, nurse: 6}
//
// An empty path yields staffing.DefaultPolicy.
func LoadStaffingPolicy(path string) (staffing.Policy, error) {
	if path == "" {
		return staffing.DefaultPolicy(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return staffing.Policy{}, fmt.Errorf("read staffing policy %s: %w", path, err)
	}

	var pf policyFile
	if err := v.Unmarshal(&pf); err != nil {
		return staffing.Policy{}, fmt.Errorf("decode staffing policy %s: %w", path, err)
	}
	if len(pf.Areas) == 0 {
		return staffing.Policy{}, fmt.Errorf("staffing policy %s defines no areas", path)
	}

	p, err := staffing.PolicyFromMap(pf.Areas, pf.MaxShiftsPerWeek)
	if err != nil {
		return staffing.Policy{}, fmt.Errorf("staffing policy %s: %w", path, err)
	}
	return p, nil
}

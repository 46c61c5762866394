package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Catalog sources.
const (
	SourceFile     = "file"
	SourceDatabase = "database"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	CatalogPath    string   `mapstructure:"CATALOG_PATH"`
	CatalogStrict  bool     `mapstructure:"CATALOG_STRICT"`
	CatalogWatch   bool     `mapstructure:"CATALOG_WATCH"`
	CatalogSource  string   `mapstructure:"CATALOG_SOURCE"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	AuditEnabled   bool     `mapstructure:"AUDIT_ENABLED"`
	AuthSecret     string   `mapstructure:"AUTH_SECRET"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	MaxInputChars  int      `mapstructure:"MAX_INPUT_CHARS"`
	BodyLimit      string   `mapstructure:"BODY_LIMIT"`
	UnicodeNFC     bool     `mapstructure:"UNICODE_NFC"`
}

var keys = []string{
	"PORT", "ENV",
	"CATALOG_PATH", "CATALOG_STRICT", "CATALOG_WATCH", "CATALOG_SOURCE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "AUDIT_ENABLED",
	"AUTH_SECRET", "AUTH_ISSUER", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"MAX_INPUT_CHARS", "BODY_LIMIT", "UNICODE_NFC",
}

// Load reads configuration from the environment and an optional .env file.
// The result is not validated; call Validate before serving.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("CATALOG_STRICT", false)
	v.SetDefault("CATALOG_WATCH", true)
	v.SetDefault("CATALOG_SOURCE", SourceFile)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("AUDIT_ENABLED", false)
	v.SetDefault("AUTH_ISSUER", "medterm")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("MAX_INPUT_CHARS", 10000)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UNICODE_NFC", false)

	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}
	cfg.CatalogSource = strings.ToLower(strings.TrimSpace(cfg.CatalogSource))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// NeedsDatabase reports whether any enabled feature requires Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.CatalogSource == SourceDatabase || c.AuditEnabled
}

// Validate rejects combinations the server cannot run with.
func (c *Config) Validate() error {
	switch c.CatalogSource {
	case SourceFile, SourceDatabase:
	default:
		return fmt.Errorf("CATALOG_SOURCE must be %q or %q, got %q", SourceFile, SourceDatabase, c.CatalogSource)
	}
	if c.NeedsDatabase() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when CATALOG_SOURCE=database or AUDIT_ENABLED=true")
	}
	if c.CatalogSource == SourceDatabase && c.CatalogPath != "" {
		return fmt.Errorf("CATALOG_PATH cannot be combined with CATALOG_SOURCE=database")
	}
	if !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required outside development (ENV=%q)", c.Env)
	}
	if c.AuthSecret != "" && len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 bytes, got %d", len(c.AuthSecret))
	}
	if c.MaxInputChars <= 0 {
		return fmt.Errorf("MAX_INPUT_CHARS must be positive, got %d", c.MaxInputChars)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	return nil
}

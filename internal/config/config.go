package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string `mapstructure:"PORT"`
	Env           string `mapstructure:"ENV"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	SessionSecret string `mapstructure:"SESSION_SECRET"`
	SessionTTL    int    `mapstructure:"SESSION_TTL_HOURS"`
	UploadsDir    string `mapstructure:"UPLOADS_DIR"`
	TemplatesDir  string `mapstructure:"TEMPLATES_DIR"`
	StaticDir     string `mapstructure:"STATIC_DIR"`
	BaseURL       string `mapstructure:"BASE_URL"`
	SMTPHost      string `mapstructure:"SMTP_HOST"`
	SMTPPort      int    `mapstructure:"SMTP_PORT"`
	SMTPUser      string `mapstructure:"SMTP_USER"`
	SMTPPassword  string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom      string `mapstructure:"SMTP_FROM"`
	RetentionDays int    `mapstructure:"RETENTION_DAYS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("SESSION_TTL_HOURS", 24)
	v.SetDefault("UPLOADS_DIR", "uploads")
	v.SetDefault("TEMPLATES_DIR", "web/templates")
	v.SetDefault("STATIC_DIR", "web/static")
	v.SetDefault("BASE_URL", "http://localhost:8000")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM", "noreply@blooddiagnosis.local")
	v.SetDefault("RETENTION_DAYS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("SESSION_SECRET")
	v.BindEnv("SESSION_TTL_HOURS")
	v.BindEnv("UPLOADS_DIR")
	v.BindEnv("TEMPLATES_DIR")
	v.BindEnv("STATIC_DIR")
	v.BindEnv("BASE_URL")
	v.BindEnv("SMTP_HOST")
	v.BindEnv("SMTP_PORT")
	v.BindEnv("SMTP_USER")
	v.BindEnv("SMTP_PASSWORD")
	v.BindEnv("SMTP_FROM")
	v.BindEnv("RETENTION_DAYS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
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

// MailConfigured reports whether SMTP delivery is set up. Without a host the
// server falls back to logging outbound mail instead of sending it.
func (c *Config) MailConfigured() bool {
	return c.SMTPHost != ""
}

// Validate checks that the configuration is safe to run. Development mode may
// fall back to a built-in session secret; any other mode must provide one so
// that session cookies cannot be forged with a known key.
func (c *Config) Validate() error {
	if !c.IsDev() && c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required when ENV=%q; refusing to sign session cookies with a built-in key", c.Env)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive, got %d", c.SessionTTL)
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive, got %d", c.RetentionDays)
	}
	return nil
}

// SessionKey returns the HS256 signing key for session cookies. In
// development a fixed key is substituted when none is configured.
func (c *Config) SessionKey() []byte {
	if c.SessionSecret == "" && c.IsDev() {
		return []byte("dev-session-secret-do-not-use-in-production")
	}
	return []byte(c.SessionSecret)
}

// Package config provides environment-based configuration for the invitation service.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the invitation service.
type Config struct {
	// Storage
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseDSN string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/inviteonly?sslmode=disable"`

	// Authentication for the admin API
	JWTSecret string        `env:"JWT_SECRET"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	// Server configuration
	APIHost string `env:"API_HOST" envDefault:"0.0.0.0"`
	APIPort int    `env:"API_PORT" envDefault:"8080"`
	// PublicURL is the externally reachable base URL used in invitation links.
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"true"`

	// PolicyFile optionally points at a YAML file overriding the invitation policy.
	PolicyFile string `env:"INVITE_POLICY_FILE"`

	Invitations InvitationsConfig `envPrefix:"INVITE_"`
	Mail        MailConfig        `envPrefix:"MAIL_"`
	Worker      WorkerConfig      `envPrefix:"WORKER_"`
}

// InvitationsConfig holds the invitation policy.
type InvitationsConfig struct {
	Expiration ExpirationConfig `yaml:"expiration" envPrefix:"EXPIRATION_"`
	Reminders  RemindersConfig  `yaml:"reminders" envPrefix:"REMINDERS_"`
	// Notifications maps a notification kind to a template name. An empty
	// name disables the kind; kinds not listed use the built-in template.
	Notifications map[string]string `yaml:"notifications" env:"NOTIFICATIONS"`
	Redirects     RedirectsConfig   `yaml:"redirect" envPrefix:"REDIRECT_"`
	// InvitableTypes restricts the accepted invitable type tags. Empty allows any.
	InvitableTypes []string `yaml:"invitable_types" env:"INVITABLE_TYPES" envSeparator:","`
}

// ExpirationConfig controls default invitation expiry.
type ExpirationConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED" envDefault:"true"`
	Days    int  `yaml:"days" env:"DAYS" envDefault:"7"`
}

// RemindersConfig controls the reminder sweep.
type RemindersConfig struct {
	Enabled      bool  `yaml:"enabled" env:"ENABLED" envDefault:"true"`
	AfterDays    []int `yaml:"after_days" env:"AFTER_DAYS" envDefault:"3,5" envSeparator:","`
	MaxReminders int   `yaml:"max_reminders" env:"MAX" envDefault:"2"`
}

// RedirectsConfig holds the targets of the public accept/decline pages.
type RedirectsConfig struct {
	Accepted string `yaml:"accepted" env:"ACCEPTED" envDefault:"/"`
	Declined string `yaml:"declined" env:"DECLINED" envDefault:"/"`
	Expired  string `yaml:"expired" env:"EXPIRED" envDefault:"/"`
	Home     string `yaml:"home" env:"HOME" envDefault:"/"`
}

// MailConfig holds mail delivery configuration.
type MailConfig struct {
	// Driver is "log" or "sendgrid".
	Driver         string `env:"DRIVER" envDefault:"log"`
	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	FromAddress    string `env:"FROM_ADDRESS" envDefault:"no-reply@localhost"`
	FromName       string `env:"FROM_NAME" envDefault:"Invitations"`
	// Async routes mail through the delivery queue drained by the worker.
	Async       bool `env:"ASYNC" envDefault:"false"`
	MaxAttempts int  `env:"MAX_ATTEMPTS" envDefault:"5"`
}

// WorkerConfig holds background worker configuration.
type WorkerConfig struct {
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	DeliveryConcurrency  int           `env:"DELIVERY_CONCURRENCY" envDefault:"2"`
	DeliveryPollInterval time.Duration `env:"DELIVERY_POLL_INTERVAL" envDefault:"1s"`
}

// Known values checked by Validate.
var (
	StoreDrivers      = []string{"postgres", "memory"}
	MailDrivers       = []string{"log", "sendgrid"}
	NotificationKinds = []string{"invitation", "reminder", "cancelled", "accepted"}
)

// Load reads configuration from environment variables, applies the optional
// policy file and validates the result.
func Load() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	cfg, err := parse()
	if err != nil {
		cfg = &Config{}
		_ = env.Parse(cfg)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "development-secret-key-min-32-chars"
	}
	return cfg
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.PolicyFile != "" {
		if err := LoadPolicy(cfg.PolicyFile, &cfg.Invitations); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// LoadPolicy overlays the YAML policy file at path onto inv. Keys absent from
// the file keep their current values.
func LoadPolicy(path string, inv *InvitationsConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, inv); err != nil {
		return fmt.Errorf("parsing policy file %s: %w", path, err)
	}
	return nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if !contains(StoreDrivers, c.StoreDriver) {
		return fmt.Errorf("STORE_DRIVER must be one of %v", StoreDrivers)
	}
	if !contains(MailDrivers, c.Mail.Driver) {
		return fmt.Errorf("MAIL_DRIVER must be one of %v", MailDrivers)
	}
	if c.Mail.Driver == "sendgrid" && c.Mail.SendGridAPIKey == "" {
		return fmt.Errorf("MAIL_SENDGRID_API_KEY is required for the sendgrid driver")
	}
	if c.Mail.MaxAttempts < 1 {
		return fmt.Errorf("MAIL_MAX_ATTEMPTS must be at least 1")
	}
	return c.Invitations.Validate()
}

// Validate checks the invitation policy.
func (c *InvitationsConfig) Validate() error {
	if c.Expiration.Enabled && c.Expiration.Days <= 0 {
		return fmt.Errorf("expiration days must be positive")
	}
	for _, d := range c.Reminders.AfterDays {
		if d <= 0 {
			return fmt.Errorf("reminder after_days must be positive, got %d", d)
		}
	}
	if c.Reminders.MaxReminders < 0 {
		return fmt.Errorf("max_reminders must not be negative")
	}
	for kind := range c.Notifications {
		if !contains(NotificationKinds, kind) {
			return fmt.Errorf("unknown notification kind %q", kind)
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

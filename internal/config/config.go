// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the form mailer.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotConfigured reports that the mail transport is missing mandatory settings.
var ErrNotConfigured = errors.New("email service not configured")

const (
	defaultListen       = ":8888"
	defaultEmailPort    = 587
	defaultEmailTimeout = 30 * time.Second
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 60 * time.Second
)

// Provider names accepted in Config.Provider.
const (
	ProviderSMTP   = "smtp"
	ProviderSES    = "ses"
	ProviderStdout = "stdout"
)

// Config holds the complete application configuration.
type Config struct {
	Provider string        `yaml:"provider"`
	HTTP     HTTPConfig    `yaml:"http"`
	Email    EmailConfig   `yaml:"email"`
	Site     SiteConfig    `yaml:"site"`
	SES      SESConfig     `yaml:"ses"`
	Logging  LoggingConfig `yaml:"logging"`
}

// HTTPConfig holds the webhook listener configuration.
type HTTPConfig struct {
	Listen       string        `yaml:"listen"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// EmailConfig holds the outbound mail transport settings.
type EmailConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Secure  bool          `yaml:"secure"`
	User    string        `yaml:"user"`
	Pass    string        `yaml:"pass"`
	Timeout time.Duration `yaml:"timeout"`
}

// SiteConfig holds the public site settings used to build download links.
// An empty URL means the built-in production URL is used.
type SiteConfig struct {
	URL string `yaml:"url"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	// Endpoint overrides the SES API URL, e.g. for a local emulator.
	Endpoint string `yaml:"endpoint"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvVars()

	return cfg, nil
}

// DeliveryConfigured checks that every setting the selected provider needs
// before it may touch the network is present. The returned error wraps
// ErrNotConfigured and names the missing fields.
func (c *Config) DeliveryConfigured() error {
	var missing []string

	switch c.Provider {
	case ProviderSES:
		if c.SES.Region == "" {
			missing = append(missing, "ses.region")
		}
		if c.Email.User == "" {
			missing = append(missing, "email.user")
		}
	case ProviderStdout:
		if c.Email.User == "" {
			missing = append(missing, "email.user")
		}
	default:
		if c.Email.Host == "" {
			missing = append(missing, "email.host")
		}
		if c.Email.User == "" {
			missing = append(missing, "email.user")
		}
		if c.Email.Pass == "" {
			missing = append(missing, "email.pass")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	return nil
}

// DeliveryTimeout returns the bound on one delivery attempt. It is kept at
// three quarters of HTTP.WriteTimeout at most, so a slow relay still leaves
// time to write the JSON response.
func (c *Config) DeliveryTimeout() time.Duration {
	d := c.Email.Timeout
	if d <= 0 {
		d = defaultEmailTimeout
	}
	if w := c.HTTP.WriteTimeout; w > 0 && d > w*3/4 {
		d = w * 3 / 4
	}
	return d
}

// Addr returns the host:port pair of the mail transport.
func (e EmailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Provider = ProviderSMTP
	c.HTTP.Listen = defaultListen
	c.HTTP.ReadTimeout = defaultReadTimeout
	c.HTTP.WriteTimeout = defaultWriteTimeout
	c.Email.Port = defaultEmailPort
	c.Email.Timeout = defaultEmailTimeout
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	if v := os.Getenv("HTTP_LISTEN"); v != "" {
		c.HTTP.Listen = v
	}

	if v := os.Getenv("EMAIL_HOST"); v != "" {
		c.Email.Host = v
	}
	if v := os.Getenv("EMAIL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Email.Port = port
		}
	}
	if v := os.Getenv("EMAIL_SECURE"); v != "" {
		// Only the literal "true" enables implicit TLS.
		c.Email.Secure = v == "true"
	}
	if v := os.Getenv("EMAIL_USER"); v != "" {
		c.Email.User = v
	}
	if v := os.Getenv("EMAIL_PASS"); v != "" {
		c.Email.Pass = v
	}
	if v := os.Getenv("EMAIL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Email.Timeout = d
		}
	}

	if v := os.Getenv("SITE_URL"); v != "" {
		c.Site.URL = v
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_ENDPOINT"); v != "" {
		c.SES.Endpoint = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the mail proxy.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultHTTPTimeout bounds every external call (workflow engine, backend
// mail APIs, PDF source) in seconds.
const defaultHTTPTimeout = 30

// Config holds the complete application configuration. It is read-only
// after Load; no request handler mutates it.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Workflow WorkflowConfig `yaml:"workflow"`
	SES      SESConfig      `yaml:"ses"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// AuthConfig holds the two proxy secrets and the cross-origin allow-list.
// AdminKey grants full capability; WidgetKey grants read-only capability.
type AuthConfig struct {
	AdminKey       string   `yaml:"admin_key"`
	WidgetKey      string   `yaml:"widget_key"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WorkflowConfig holds the workflow engine endpoint and its server-side
// bearer token.
type WorkflowConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIToken string `yaml:"api_token"`
}

// SESConfig holds AWS SES configuration for the transactional-send backend.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// OAuthConfig surfaces the per-backend OAuth client identifiers the embedded
// widget needs to start a token flow. The proxy itself never acquires tokens.
type OAuthConfig struct {
	GmailClientID string `yaml:"gmail_client_id"`
	GraphClientID string `yaml:"graph_client_id"`
}

// HTTPConfig holds outbound HTTP client configuration.
type HTTPConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables.
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

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces the secret invariants: both keys present and distinct,
// so that exactly one of the two determines each request's capability.
func (c *Config) validate() error {
	if c.Auth.AdminKey == "" {
		return fmt.Errorf("ADMIN_API_KEY is required")
	}
	if c.Auth.WidgetKey == "" {
		return fmt.Errorf("WIDGET_API_KEY is required")
	}
	if c.Auth.AdminKey == c.Auth.WidgetKey {
		return fmt.Errorf("WIDGET_API_KEY must differ from ADMIN_API_KEY: the widget key is exposed to browsers and must not grant admin access")
	}
	return nil
}

// SESConfigured returns true if the SES region and sender identity are set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// WorkflowConfigured returns true if the workflow engine endpoint and token
// are both set.
func (c *Config) WorkflowConfigured() bool {
	return c.Workflow.BaseURL != "" && c.Workflow.APIToken != ""
}

// OriginAllowed reports whether the given Origin header value passes the
// cross-origin allow-list. A list containing "*" allows every origin.
func (c *Config) OriginAllowed(origin string) bool {
	for _, allowed := range c.Auth.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Server.Listen = ":8080"
	c.Auth.AllowedOrigins = []string{"*"}
	c.HTTP.TimeoutSeconds = defaultHTTPTimeout
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Listen = ":" + v
	}

	if v := os.Getenv("ADMIN_API_KEY"); v != "" {
		c.Auth.AdminKey = v
	}
	if v := os.Getenv("WIDGET_API_KEY"); v != "" {
		c.Auth.WidgetKey = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		origins := make([]string, 0)
		for _, o := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		if len(origins) > 0 {
			c.Auth.AllowedOrigins = origins
		}
	}

	if v := os.Getenv("WORKFLOW_BASE_URL"); v != "" {
		c.Workflow.BaseURL = v
	}
	if v := os.Getenv("WORKFLOW_API_TOKEN"); v != "" {
		c.Workflow.APIToken = v
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
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.SES.Sender = v
	}

	if v := os.Getenv("GMAIL_CLIENT_ID"); v != "" {
		c.OAuth.GmailClientID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_ID"); v != "" {
		c.OAuth.GraphClientID = v
	}

	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			c.HTTP.TimeoutSeconds = seconds
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

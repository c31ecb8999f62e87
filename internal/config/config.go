package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Transport types
const (
	TransportSMTP    = "smtp"
	TransportSendry  = "sendry"
	TransportResend  = "resend"
	TransportSandbox = "sandbox"
	TransportLog     = "log"
)

// SMTP connection security modes
const (
	SecurityNone     = "none"
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
)

// Config is the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr     string    `yaml:"listen_addr"`
	TLS            TLSConfig `yaml:"tls"`
	TrustedProxies []string  `yaml:"trusted_proxies"` // Peers whose X-Forwarded-For is honoured
}

type TLSConfig struct {
	Enabled  bool       `yaml:"enabled"`
	CertFile string     `yaml:"cert_file"`
	KeyFile  string     `yaml:"key_file"`
	ACME     ACMEConfig `yaml:"acme"`
}

// ACMEConfig contains Let's Encrypt ACME settings
type ACMEConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Email    string   `yaml:"email"`
	Domains  []string `yaml:"domains"`
	CacheDir string   `yaml:"cache_dir"`
	HTTPAddr string   `yaml:"http_addr"` // HTTP-01 challenge listener, default :80
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	LocalEnabled      bool          `yaml:"local_enabled"`
	RegistrationOpen  bool          `yaml:"registration_open"`
	SessionSecret     string        `yaml:"session_secret"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	MinPasswordLength int           `yaml:"min_password_length"`
	OIDC              OIDCConfig    `yaml:"oidc"`
}

type OIDCConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Provider        string   `yaml:"provider"`
	ClientID        string   `yaml:"client_id"`
	ClientSecret    string   `yaml:"client_secret"`
	IssuerURL       string   `yaml:"issuer_url"`
	RedirectURL     string   `yaml:"redirect_url"`
	Scopes          []string `yaml:"scopes"`
	AllowedGroups   []string `yaml:"allowed_groups"`
	ManagerGroups   []string `yaml:"manager_groups"`   // Groups mapped to the manager role
	SuperuserGroups []string `yaml:"superuser_groups"` // Groups mapped to the superuser role
}

// TransportConfig selects and configures the mail transport used by dispatch
type TransportConfig struct {
	Type    string        `yaml:"type"`
	From    string        `yaml:"from"`
	Timeout time.Duration `yaml:"timeout"` // Per-recipient delivery timeout, 0 disables

	SMTP    SMTPTransportConfig    `yaml:"smtp"`
	Sendry  SendryTransportConfig  `yaml:"sendry"`
	Resend  ResendTransportConfig  `yaml:"resend"`
	Sandbox SandboxTransportConfig `yaml:"sandbox"`
}

type SMTPTransportConfig struct {
	Host      string     `yaml:"host"`
	Port      int        `yaml:"port"`
	Username  string     `yaml:"username"`
	Password  string     `yaml:"password"`
	Security  string     `yaml:"security"` // none, starttls, tls
	HelloName string     `yaml:"hello_name"`
	DKIM      DKIMConfig `yaml:"dkim"`
}

// DKIMConfig contains DKIM signing settings for outgoing SMTP messages
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// SendryTransportConfig points at a Sendry MTA HTTP API
type SendryTransportConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type ResendTransportConfig struct {
	APIKey string `yaml:"api_key"`
}

// SandboxTransportConfig captures messages locally instead of delivering them
type SandboxTransportConfig struct {
	Path        string   `yaml:"path"`
	FailDomains []string `yaml:"fail_domains"` // Recipient domains that simulate a delivery failure
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path"`           // Default: /metrics
	FlushInterval time.Duration `yaml:"flush_interval"` // Gauge refresh interval, default: 15s
	AllowedIPs    []string      `yaml:"allowed_ips"`    // IP addresses/CIDRs allowed to access metrics
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Environment variables that override secrets from the config file
const (
	EnvSessionSecret    = "LISTMAIL_SESSION_SECRET"
	EnvDatabasePath     = "LISTMAIL_DATABASE_PATH"
	EnvSMTPPassword     = "LISTMAIL_SMTP_PASSWORD"
	EnvResendAPIKey     = "LISTMAIL_RESEND_API_KEY"
	EnvSendryAPIKey     = "LISTMAIL_SENDRY_API_KEY"
	EnvOIDCClientSecret = "LISTMAIL_OIDC_CLIENT_SECRET"
)

// Load reads the YAML configuration, applies .env and environment overrides,
// fills defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadDotEnv(filepath.Dir(path)); err != nil {
		return nil, err
	}
	applyEnv(cfg)

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env files from the config directory and the working
// directory. Variables already present in the environment are kept.
func loadDotEnv(configDir string) error {
	candidates := []string{filepath.Join(configDir, ".env"), ".env"}
	seen := make(map[string]bool)

	for _, file := range candidates {
		abs, err := filepath.Abs(file)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true

		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("failed to load %s: %w", abs, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	override(&cfg.Auth.SessionSecret, EnvSessionSecret)
	override(&cfg.Database.Path, EnvDatabasePath)
	override(&cfg.Transport.SMTP.Password, EnvSMTPPassword)
	override(&cfg.Transport.Resend.APIKey, EnvResendAPIKey)
	override(&cfg.Transport.Sendry.APIKey, EnvSendryAPIKey)
	override(&cfg.Auth.OIDC.ClientSecret, EnvOIDCClientSecret)
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8088"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/listmail/app.db"
	}
	if cfg.Server.TLS.ACME.CacheDir == "" {
		cfg.Server.TLS.ACME.CacheDir = filepath.Join(filepath.Dir(cfg.Database.Path), "certs")
	}
	if cfg.Server.TLS.ACME.HTTPAddr == "" {
		cfg.Server.TLS.ACME.HTTPAddr = ":80"
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 24 * time.Hour
	}
	if cfg.Auth.MinPasswordLength == 0 {
		cfg.Auth.MinPasswordLength = 10
	}
	if len(cfg.Auth.OIDC.Scopes) == 0 {
		cfg.Auth.OIDC.Scopes = []string{"openid", "profile", "email"}
	}
	if cfg.Transport.Type == "" {
		cfg.Transport.Type = TransportLog
	}
	if cfg.Transport.SMTP.Port == 0 {
		switch cfg.Transport.SMTP.Security {
		case SecurityTLS:
			cfg.Transport.SMTP.Port = 465
		case SecurityNone:
			cfg.Transport.SMTP.Port = 25
		default:
			cfg.Transport.SMTP.Port = 587
		}
	}
	if cfg.Transport.SMTP.Security == "" {
		cfg.Transport.SMTP.Security = SecurityStartTLS
	}
	if cfg.Transport.SMTP.HelloName == "" {
		cfg.Transport.SMTP.HelloName = "localhost"
	}
	if cfg.Transport.Sandbox.Path == "" {
		cfg.Transport.Sandbox.Path = filepath.Join(filepath.Dir(cfg.Database.Path), "sandbox.db")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.FlushInterval == 0 {
		cfg.Metrics.FlushInterval = 15 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Auth.SessionSecret == "" {
		return fmt.Errorf("auth.session_secret is required")
	}
	if len(cfg.Auth.SessionSecret) < 32 {
		return fmt.Errorf("auth.session_secret must be at least 32 characters")
	}
	if err := validateTLS(cfg.Server.TLS); err != nil {
		return err
	}
	if !cfg.Auth.LocalEnabled && !cfg.Auth.OIDC.Enabled {
		return fmt.Errorf("at least one auth method must be enabled (local or OIDC)")
	}
	if cfg.Auth.OIDC.Enabled {
		if cfg.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("auth.oidc.client_id is required when OIDC is enabled")
		}
		if cfg.Auth.OIDC.ClientSecret == "" {
			return fmt.Errorf("auth.oidc.client_secret is required when OIDC is enabled")
		}
		if cfg.Auth.OIDC.IssuerURL == "" {
			return fmt.Errorf("auth.oidc.issuer_url is required when OIDC is enabled")
		}
	}
	if cfg.Transport.Timeout < 0 {
		return fmt.Errorf("transport.timeout must not be negative")
	}

	switch cfg.Transport.Type {
	case TransportSMTP:
		t := cfg.Transport.SMTP
		if t.Host == "" {
			return fmt.Errorf("transport.smtp.host is required for smtp transport")
		}
		switch t.Security {
		case SecurityNone, SecurityStartTLS, SecurityTLS:
		default:
			return fmt.Errorf("transport.smtp.security must be one of none, starttls, tls")
		}
		if t.DKIM.Enabled && (t.DKIM.Domain == "" || t.DKIM.Selector == "" || t.DKIM.KeyFile == "") {
			return fmt.Errorf("transport.smtp.dkim requires domain, selector and key_file when enabled")
		}
	case TransportSendry:
		if cfg.Transport.Sendry.BaseURL == "" {
			return fmt.Errorf("transport.sendry.base_url is required for sendry transport")
		}
		if cfg.Transport.Sendry.APIKey == "" {
			return fmt.Errorf("transport.sendry.api_key is required for sendry transport")
		}
	case TransportResend:
		if cfg.Transport.Resend.APIKey == "" {
			return fmt.Errorf("transport.resend.api_key is required for resend transport")
		}
	case TransportSandbox, TransportLog:
	default:
		return fmt.Errorf("unknown transport type: %s", cfg.Transport.Type)
	}

	if cfg.Transport.Type != TransportLog && cfg.Transport.Type != TransportSandbox && cfg.Transport.From == "" {
		return fmt.Errorf("transport.from is required for %s transport", cfg.Transport.Type)
	}

	return nil
}

func validateTLS(tls TLSConfig) error {
	if !tls.Enabled {
		return nil
	}

	hasCerts := tls.CertFile != "" || tls.KeyFile != ""
	if hasCerts && tls.ACME.Enabled {
		return fmt.Errorf("server.tls: cannot use both manual certificates and ACME")
	}
	if tls.ACME.Enabled {
		if tls.ACME.Email == "" {
			return fmt.Errorf("server.tls.acme.email is required when ACME is enabled")
		}
		if len(tls.ACME.Domains) == 0 {
			return fmt.Errorf("server.tls.acme.domains is required when ACME is enabled")
		}
		return nil
	}
	if tls.CertFile == "" || tls.KeyFile == "" {
		return fmt.Errorf("server.tls requires cert_file and key_file, or acme")
	}
	return nil
}

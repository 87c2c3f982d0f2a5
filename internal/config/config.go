// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads server configuration from flags, an optional YAML
// file, and the environment.
//
// Precedence, lowest first: flag defaults, the YAML file, flags set on the
// command line. Secrets are read only from the environment, which may be
// seeded from a .env file.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/authgate/internal/auth"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Environment variables holding secrets.
const (
	EnvDatabaseURL  = "DATABASE_URL"
	EnvResendAPIKey = "RESEND_API_KEY"
)

// Config is the resolved server configuration.
type Config struct {
	HTTPAddr    string `koanf:"http_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	BasePath    string `koanf:"base_path"`
	LogFormat   string `koanf:"log_format"`
	LogLevel    string `koanf:"log_level"`

	Store       string `koanf:"store"`
	AutoMigrate bool   `koanf:"auto_migrate"`

	HashAlgorithm string `koanf:"hash_algorithm"`
	BcryptCost    int    `koanf:"bcrypt_cost"`

	SessionTTL            time.Duration `koanf:"session_ttl"`
	ResetTTL              time.Duration `koanf:"reset_ttl"`
	ResetURL              string        `koanf:"reset_url"`
	RevealUnknownEmail    bool          `koanf:"reveal_unknown_email"`
	UnknownEmailDelay     time.Duration `koanf:"unknown_email_delay"`
	RevokeSessionsOnReset bool          `koanf:"revoke_sessions_on_reset"`

	PasswordMinLength int  `koanf:"password_min_length"`
	PasswordMixedCase bool `koanf:"password_mixed_case"`
	PasswordNumbers   bool `koanf:"password_numbers"`
	PasswordSymbols   bool `koanf:"password_symbols"`

	MailFrom     string   `koanf:"mail_from"`
	MailLogLinks bool     `koanf:"mail_log_links"`
	CORSOrigins  []string `koanf:"cors_origins"`

	DatabaseURL  string `koanf:"-"`
	ResendAPIKey string `koanf:"-"`
}

// RegisterFlags adds a flag for every configuration key. The flag defaults
// are the configuration defaults.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("http-addr", ":8080", "API listen address")
	flags.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	flags.String("base-path", "/api", "path prefix for API routes")
	flags.String("log-format", "json", "log format (json or text)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	flags.String("store", StorePostgres, "storage backend (postgres or memory)")
	flags.Bool("auto-migrate", true, "apply pending migrations on startup")

	flags.String("hash-algorithm", auth.AlgorithmBcrypt, "password hash algorithm (bcrypt or argon2id)")
	flags.Int("bcrypt-cost", 12, "bcrypt cost factor")

	flags.Duration("session-ttl", auth.DefaultSessionTTL, "session lifetime (0 = until logout)")
	flags.Duration("reset-ttl", auth.DefaultResetTTL, "password reset token lifetime")
	flags.String("reset-url", "http://localhost:3000/reset-password", "client page that receives reset links")
	flags.Bool("reveal-unknown-email", false, "fail forgot-password for unregistered emails")
	flags.Duration("unknown-email-delay", auth.DefaultUnknownEmailDelay, "forgot-password delay for unregistered emails until a real delivery is timed")
	flags.Bool("revoke-sessions-on-reset", true, "sign the user out everywhere after a password reset")

	policy := auth.DefaultPasswordPolicy()
	flags.Int("password-min-length", policy.MinLength, "minimum password length")
	flags.Bool("password-mixed-case", policy.RequireMixedCase, "require upper and lower case letters")
	flags.Bool("password-numbers", policy.RequireDigit, "require a digit")
	flags.Bool("password-symbols", policy.RequireSymbol, "require a symbol")

	flags.String("mail-from", "Authgate <no-reply@localhost>", "sender address for reset emails")
	flags.Bool("mail-log-links", false, "log reset links with their token when no mail provider is configured")
	flags.StringSlice("cors-origins", []string{"http://localhost:3000"}, "allowed CORS origins")
}

// Load resolves the configuration. configPath and envFile are optional; a
// missing envFile is ignored, a missing configPath is an error.
func Load(flags *pflag.FlagSet, configPath, envFile string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", configPath).
				Wrap(err)
		}
	}

	provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
		return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("operation", "load flags").
			Wrap(err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("operation", "unmarshal").
			Wrap(err)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", envFile).
				Wrap(err)
		}
	}
	cfg.DatabaseURL = os.Getenv(EnvDatabaseURL)
	cfg.ResendAPIKey = os.Getenv(EnvResendAPIKey)

	return &cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if c.HTTPAddr == "" {
		return invalid("http_addr", "http_addr is required")
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return invalid("base_path", "base_path must start with '/', got %q", c.BasePath)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log_format", "log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level", "log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return invalid("store", "%s environment variable is required for the postgres store", EnvDatabaseURL)
		}
	case StoreMemory:
	default:
		return invalid("store", "store must be 'postgres' or 'memory', got %q", c.Store)
	}

	switch c.HashAlgorithm {
	case auth.AlgorithmBcrypt:
		if c.BcryptCost < auth.MinBcryptCost {
			return invalid("bcrypt_cost", "bcrypt_cost must be at least %d, got %d", auth.MinBcryptCost, c.BcryptCost)
		}
	case auth.AlgorithmArgon2id:
	default:
		return invalid("hash_algorithm", "hash_algorithm must be 'bcrypt' or 'argon2id', got %q", c.HashAlgorithm)
	}

	if c.SessionTTL < 0 {
		return invalid("session_ttl", "session_ttl cannot be negative")
	}
	if c.ResetTTL <= 0 {
		return invalid("reset_ttl", "reset_ttl must be positive")
	}
	if c.UnknownEmailDelay < 0 {
		return invalid("unknown_email_delay", "unknown_email_delay cannot be negative")
	}
	if u, err := url.Parse(c.ResetURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("reset_url", "reset_url must be an absolute URL, got %q", c.ResetURL)
	}
	if c.PasswordMinLength < 1 {
		return invalid("password_min_length", "password_min_length must be at least 1")
	}
	if c.MailFrom == "" {
		return invalid("mail_from", "mail_from is required")
	}
	for _, origin := range c.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return invalid("cors_origins", "cors_origins entries must be '*' or start with http:// or https://, got %q", origin)
		}
	}
	return nil
}

// PasswordPolicy returns the configured password strength rules.
func (c *Config) PasswordPolicy() auth.PasswordPolicy {
	return auth.PasswordPolicy{
		MinLength:        c.PasswordMinLength,
		RequireMixedCase: c.PasswordMixedCase,
		RequireDigit:     c.PasswordNumbers,
		RequireSymbol:    c.PasswordSymbols,
	}
}

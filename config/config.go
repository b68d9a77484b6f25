// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"bitwise74/account-api/pkg/validators"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	validLogLevels = []string{"debug", "info", "warn", "error", "fatal"}
	validDrivers   = []string{"sqlite", "postgres"}
)

type Config struct {
	LogLevel string
	Worker   bool

	Host     HostConfig
	Database DatabaseConfig
	Security SecurityConfig
	Mail     MailConfig
	Google   GoogleConfig

	SuperuserEmail    string
	SuperuserPassword string
}

type HostConfig struct {
	Port       int
	Domain     string
	CORS       []string
	SSLEnabled bool
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type SecurityConfig struct {
	JWTSecret            string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
}

type MailConfig struct {
	VerificationEnabled bool
	Host                string
	Port                int
	Username            string
	Password            string
	SenderAddress       string

	QueueEnabled bool
	RedisAddr    string
}

// Configured reports whether enough SMTP settings are present to deliver mail.
func (m MailConfig) Configured() bool {
	return m.Host != "" && m.SenderAddress != ""
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// Scheme returns the URL scheme used when building links back to the API.
func (h HostConfig) Scheme() string {
	if h.SSLEnabled {
		return "https"
	}

	return "http"
}

// splitList also accepts comma separated values since that's how lists
// arrive from environment variables
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Setup reads config.toml (if present), the environment and the given
// command line arguments. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup(args []string) (*Config, error) {
	v := viper.New()

	flags := pflag.NewFlagSet("account-api", pflag.ContinueOnError)
	flags.Bool("worker", false, "Runs the mail worker instead of the HTTP server")
	flags.String("config", ".", "Directory containing config.toml")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags, %w", err)
	}
	v.BindPFlags(flags)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(v.GetString("config"))

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "APP_LOG_LEVEL")

	v.BindEnv("host.port", "HOST_PORT")
	v.BindEnv("host.domain", "HOST_DOMAIN")
	v.BindEnv("host.cors", "HOST_CORS")
	v.BindEnv("host.ssl.enabled", "HOST_SSL_ENABLED")

	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.dsn", "DATABASE_DSN")

	v.BindEnv("security.jwt_secret", "SECURITY_JWT_SECRET")
	v.BindEnv("security.access_token_ttl", "SECURITY_ACCESS_TOKEN_TTL")
	v.BindEnv("security.refresh_token_ttl", "SECURITY_REFRESH_TOKEN_TTL")
	v.BindEnv("security.verification_token_ttl", "SECURITY_VERIFICATION_TOKEN_TTL")

	v.BindEnv("mail.verification_enabled", "MAIL_VERIFICATION_ENABLED")
	v.BindEnv("mail.host", "MAIL_HOST")
	v.BindEnv("mail.port", "MAIL_PORT")
	v.BindEnv("mail.username", "MAIL_USERNAME")
	v.BindEnv("mail.password", "MAIL_PASSWORD")
	v.BindEnv("mail.sender_address", "MAIL_SENDER_ADDRESS")
	v.BindEnv("mail.queue.enabled", "MAIL_QUEUE_ENABLED")

	v.BindEnv("redis.addr", "REDIS_ADDR")

	v.BindEnv("oauth.google.client_id", "GOOGLE_CLIENT_ID")
	v.BindEnv("oauth.google.client_secret", "GOOGLE_CLIENT_SECRET")
	v.BindEnv("oauth.google.redirect_url", "GOOGLE_REDIRECT_URL")

	v.BindEnv("superuser.email", "SUPERUSER_EMAIL")
	v.BindEnv("superuser.password", "SUPERUSER_PASSWORD")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.domain", "localhost:8080")
	v.SetDefault("host.cors", []string{"http://localhost:5173"})
	v.SetDefault("host.ssl.enabled", false)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "database.db")

	v.SetDefault("security.access_token_ttl", 30*time.Minute)
	v.SetDefault("security.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("security.verification_token_ttl", 48*time.Hour)

	v.SetDefault("mail.verification_enabled", false)
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.queue.enabled", false)

	v.SetDefault("redis.addr", "localhost:6379")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file, %w", err)
		}
	}

	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return nil, errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return nil, errors.New("invalid port provided")
	}

	if !slices.Contains(validDrivers, v.GetString("database.driver")) {
		return nil, errors.New("invalid database driver provided")
	}

	if v.GetString("database.dsn") == "" {
		return nil, errors.New("no database dsn provided")
	}

	if v.GetString("security.jwt_secret") == "" {
		return nil, fmt.Errorf("no JWT secret set, set SECURITY_JWT_SECRET or security.jwt_secret in config.toml. Here's a random one:\n\n%s", genSecret())
	}

	ttls := []string{"security.access_token_ttl", "security.refresh_token_ttl", "security.verification_token_ttl"}
	for _, key := range ttls {
		if v.GetDuration(key) <= 0 {
			return nil, fmt.Errorf("%s must be bigger than 0", key)
		}
	}

	if v.GetDuration("security.refresh_token_ttl") <= v.GetDuration("security.access_token_ttl") {
		return nil, errors.New("refresh token ttl must be longer than access token ttl")
	}

	if v.GetBool("mail.verification_enabled") && v.GetString("mail.host") != "" && v.GetString("mail.sender_address") == "" {
		return nil, errors.New("no mail sender address provided")
	}

	if v.GetBool("mail.queue.enabled") && v.GetString("redis.addr") == "" {
		return nil, errors.New("mail queue enabled but no redis address provided")
	}

	if (v.GetString("superuser.email") == "") != (v.GetString("superuser.password") == "") {
		return nil, errors.New("superuser email and password must be set together")
	}

	if email := v.GetString("superuser.email"); email != "" {
		if err := validators.EmailValidator(email); err != nil {
			return nil, fmt.Errorf("invalid superuser email, %w", err)
		}

		if err := validators.PasswordValidator(v.GetString("superuser.password")); err != nil {
			return nil, fmt.Errorf("invalid superuser password, %w", err)
		}
	}

	return &Config{
		LogLevel: v.GetString("app.log_level"),
		Worker:   v.GetBool("worker"),
		Host: HostConfig{
			Port:       v.GetInt("host.port"),
			Domain:     v.GetString("host.domain"),
			CORS:       splitList(v.GetStringSlice("host.cors")),
			SSLEnabled: v.GetBool("host.ssl.enabled"),
		},
		Database: DatabaseConfig{
			Driver: v.GetString("database.driver"),
			DSN:    v.GetString("database.dsn"),
		},
		Security: SecurityConfig{
			JWTSecret:            v.GetString("security.jwt_secret"),
			AccessTokenTTL:       v.GetDuration("security.access_token_ttl"),
			RefreshTokenTTL:      v.GetDuration("security.refresh_token_ttl"),
			VerificationTokenTTL: v.GetDuration("security.verification_token_ttl"),
		},
		Mail: MailConfig{
			VerificationEnabled: v.GetBool("mail.verification_enabled"),
			Host:                v.GetString("mail.host"),
			Port:                v.GetInt("mail.port"),
			Username:            v.GetString("mail.username"),
			Password:            v.GetString("mail.password"),
			SenderAddress:       v.GetString("mail.sender_address"),
			QueueEnabled:        v.GetBool("mail.queue.enabled"),
			RedisAddr:           v.GetString("redis.addr"),
		},
		Google: GoogleConfig{
			ClientID:     v.GetString("oauth.google.client_id"),
			ClientSecret: v.GetString("oauth.google.client_secret"),
			RedirectURL:  v.GetString("oauth.google.redirect_url"),
		},
		SuperuserEmail:    v.GetString("superuser.email"),
		SuperuserPassword: v.GetString("superuser.password"),
	}, nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "COURIER"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabaseURL       = "courier.db"
	defaultMaxOpenConns      = 10
	defaultLogLevel          = "info"
	defaultMigrationAttempts = 3
	defaultMigrationDelayMs  = 500
	defaultAuthIssuer        = "courier"
	defaultTokenTTLMinutes   = 720
	defaultAllowedOrigins    = "*"
	defaultTelemetryService  = "courier"
)

// AppConfig captures runtime configuration for the communication server.
type AppConfig struct {
	HTTPAddress       string
	DatabaseURL       string
	MaxOpenConns      int
	WorkspaceID       string
	LogLevel          string
	MigrationAttempts int
	MigrationDelay    time.Duration
	SigningSecret     string
	Issuer            string
	TokenTTL          time.Duration
	AllowedOrigins    []string
	TelemetryEndpoint string
	TelemetryService  string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("database.url", defaultDatabaseURL)
	configViper.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	configViper.SetDefault("workspace.id", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("migrations.attempts", defaultMigrationAttempts)
	configViper.SetDefault("migrations.delay_ms", defaultMigrationDelayMs)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("telemetry.endpoint", "")
	configViper.SetDefault("telemetry.service_name", defaultTelemetryService)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabaseURL:       configViper.GetString("database.url"),
		MaxOpenConns:      configViper.GetInt("database.max_open_conns"),
		WorkspaceID:       strings.TrimSpace(configViper.GetString("workspace.id")),
		LogLevel:          configViper.GetString("log.level"),
		MigrationAttempts: configViper.GetInt("migrations.attempts"),
		MigrationDelay:    time.Duration(configViper.GetInt("migrations.delay_ms")) * time.Millisecond,
		SigningSecret:     configViper.GetString("auth.signing_secret"),
		Issuer:            configViper.GetString("auth.issuer"),
		TokenTTL:          time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		AllowedOrigins:    splitList(configViper.GetString("http.allowed_origins")),
		TelemetryEndpoint: configViper.GetString("telemetry.endpoint"),
		TelemetryService:  configViper.GetString("telemetry.service_name"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadDatabase parses only what the migrate command needs.
func LoadDatabase(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabaseURL:       configViper.GetString("database.url"),
		MaxOpenConns:      configViper.GetInt("database.max_open_conns"),
		LogLevel:          configViper.GetString("log.level"),
		MigrationAttempts: configViper.GetInt("migrations.attempts"),
		MigrationDelay:    time.Duration(configViper.GetInt("migrations.delay_ms")) * time.Millisecond,
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return AppConfig{}, fmt.Errorf("database.url is required")
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.WorkspaceID == "" {
		return fmt.Errorf("workspace.id is required")
	}
	if c.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns must not be negative")
	}
	if c.MigrationAttempts < 1 {
		return fmt.Errorf("migrations.attempts must be at least 1")
	}
	return nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

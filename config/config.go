package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultBaseURL is the production ATH Móvil payments endpoint.
const DefaultBaseURL = "https://payments.athmovil.com"

const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxRetries     = 3
	defaultRetryBaseDelay = time.Second
)

// Config carries everything a client needs at construction time. The client
// never mutates it after New.
type Config struct {
	PublicToken  string `mapstructure:"public_token"`
	PrivateToken string `mapstructure:"private_token"`

	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	VerifySSL      bool          `mapstructure:"verify_ssl"`

	// CancelOnTimeout makes ProcessCompletePayment cancel the payment
	// (best effort) when confirmation fails or times out.
	CancelOnTimeout bool `mapstructure:"cancel_on_timeout"`

	Logger   LoggerConfig    `mapstructure:"logger"`
	Postgres *PostgresConfig `mapstructure:"postgres"`
}

type LoggerConfig struct {
	Level        string `mapstructure:"level"`
	Format       string `mapstructure:"format"`
	Output       string `mapstructure:"output"`
	EnableColors bool   `mapstructure:"enable_colors"`
	FilePath     string `mapstructure:"file_path"`
	MaxSize      int    `mapstructure:"max_size"`
	MaxBackups   int    `mapstructure:"max_backups"`
	MaxAge       int    `mapstructure:"max_age"`
	Compress     bool   `mapstructure:"compress"`
}

// PostgresConfig configures the optional pgx-backed token store.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

func (c *PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// Default returns a Config with production defaults and no tokens.
func Default() *Config {
	return &Config{
		BaseURL:         DefaultBaseURL,
		RequestTimeout:  defaultRequestTimeout,
		MaxRetries:      defaultMaxRetries,
		RetryBaseDelay:  defaultRetryBaseDelay,
		VerifySSL:       true,
		CancelOnTimeout: true,
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// Load reads config.yaml and .env from configPath (and the working
// directory), merges ATHM_-prefixed environment variables on top, and
// validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = "."
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read env: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("ATHM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVariables(v)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config failed validation: %w", err)
	}

	return cfg, nil
}

// FromEnv loads a .env file if present and builds a Config from plain
// environment variables. Lighter than Load for callers that do not ship a
// config file.
func FromEnv() (*Config, error) {
	// Missing .env is fine; real env vars may carry everything.
	_ = godotenv.Load()

	cfg := Default()
	cfg.PublicToken = os.Getenv("ATHM_PUBLIC_TOKEN")
	cfg.PrivateToken = os.Getenv("ATHM_PRIVATE_TOKEN")
	if u := os.Getenv("ATHM_BASE_URL"); u != "" {
		cfg.BaseURL = u
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config failed validation: %w", err)
	}
	return cfg, nil
}

func bindEnvVariables(v *viper.Viper) {
	_ = v.BindEnv("public_token")
	_ = v.BindEnv("private_token")
	_ = v.BindEnv("base_url")
	_ = v.BindEnv("request_timeout")
	_ = v.BindEnv("max_retries")
	_ = v.BindEnv("retry_base_delay")
	_ = v.BindEnv("verify_ssl")
	_ = v.BindEnv("cancel_on_timeout")
	// Logger
	_ = v.BindEnv("logger.level")
	_ = v.BindEnv("logger.format")
	_ = v.BindEnv("logger.output")
	_ = v.BindEnv("logger.enable_colors")
	_ = v.BindEnv("logger.file_path")
	_ = v.BindEnv("logger.max_size")
	_ = v.BindEnv("logger.max_backups")
	_ = v.BindEnv("logger.max_age")
	_ = v.BindEnv("logger.compress")
	// Postgres token store
	_ = v.BindEnv("postgres.host")
	_ = v.BindEnv("postgres.port")
	_ = v.BindEnv("postgres.user")
	_ = v.BindEnv("postgres.password")
	_ = v.BindEnv("postgres.name")
	_ = v.BindEnv("postgres.sslmode")
}

// Validate checks the fields the client cannot default its way around.
func (c *Config) Validate() error {
	if c.PublicToken == "" {
		return fmt.Errorf("public_token is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("base_url is not a valid URL: %w", err)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("retry_base_delay cannot be negative")
	}
	return nil
}

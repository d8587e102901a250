package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ReportAPIURL string `yaml:"report_api_url"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`

	APITimeoutSeconds      int `yaml:"api_timeout_seconds"`
	TransferTimeoutSeconds int `yaml:"transfer_timeout_seconds"`
	PollIntervalMS         int `yaml:"poll_interval_ms"`

	MaxUploadMB       int    `yaml:"max_upload_mb"`
	AcceptedFileTypes string `yaml:"accepted_file_types"`

	APIRateLimitRPS      float64 `yaml:"api_rate_limit_rps"`
	APIRateLimitBurst    int     `yaml:"api_rate_limit_burst"`
	APIRetryMaxAttempts  int     `yaml:"api_retry_max_attempts"`
	APIBreakerEnabled    bool    `yaml:"api_breaker_enabled"`
	APIValidateResponses bool    `yaml:"api_validate_responses"`

	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`

	PostgresDSN string `yaml:"postgres_dsn"`

	MetricsPort string `yaml:"metrics_port"`
}

func Default() Config {
	return Config{
		ReportAPIURL:           "http://localhost:8000",
		LogLevel:               "info",
		LogFormat:              "json",
		APITimeoutSeconds:      30,
		TransferTimeoutSeconds: 600,
		PollIntervalMS:         5000,
		MaxUploadMB:            50,
		AcceptedFileTypes:      ".pdf,.txt",
		APIRateLimitRPS:        10,
		APIRateLimitBurst:      5,
		APIRetryMaxAttempts:    3,
		APIBreakerEnabled:      true,
		NATSSubjectPrefix:      "reports.events",
	}
}

// Load reads the environment over the defaults.
func Load() Config {
	return applyEnv(Default())
}

// LoadFile layers a YAML file between the defaults and the environment. An
// empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	return Config{
		ReportAPIURL: mustEnv("REPORT_API_URL", cfg.ReportAPIURL),
		LogLevel:     mustEnv("LOG_LEVEL", cfg.LogLevel),
		LogFormat:    mustEnv("LOG_FORMAT", cfg.LogFormat),

		APITimeoutSeconds:      mustEnvInt("API_TIMEOUT_SECONDS", cfg.APITimeoutSeconds),
		TransferTimeoutSeconds: mustEnvInt("TRANSFER_TIMEOUT_SECONDS", cfg.TransferTimeoutSeconds),
		PollIntervalMS:         mustEnvInt("POLL_INTERVAL_MS", cfg.PollIntervalMS),

		MaxUploadMB:       mustEnvInt("MAX_UPLOAD_MB", cfg.MaxUploadMB),
		AcceptedFileTypes: mustEnv("ACCEPTED_FILE_TYPES", cfg.AcceptedFileTypes),

		APIRateLimitRPS:      mustEnvFloat("API_RATE_LIMIT_RPS", cfg.APIRateLimitRPS),
		APIRateLimitBurst:    mustEnvInt("API_RATE_LIMIT_BURST", cfg.APIRateLimitBurst),
		APIRetryMaxAttempts:  mustEnvInt("API_RETRY_MAX_ATTEMPTS", cfg.APIRetryMaxAttempts),
		APIBreakerEnabled:    mustEnvBool("API_BREAKER_ENABLED", cfg.APIBreakerEnabled),
		APIValidateResponses: mustEnvBool("API_VALIDATE_RESPONSES", cfg.APIValidateResponses),

		NATSURL:           mustEnv("NATS_URL", cfg.NATSURL),
		NATSSubjectPrefix: mustEnv("NATS_SUBJECT_PREFIX", cfg.NATSSubjectPrefix),

		PostgresDSN: mustEnv("POSTGRES_DSN", cfg.PostgresDSN),

		MetricsPort: mustEnv("METRICS_PORT", cfg.MetricsPort),
	}
}

func (c Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.ReportAPIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("REPORT_API_URL must be an absolute http(s) url, got %q", c.ReportAPIURL))
	}
	if c.PollIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL_MS must be positive, got %d", c.PollIntervalMS))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB))
	}
	if len(c.AcceptedTypes()) == 0 {
		errs = append(errs, errors.New("ACCEPTED_FILE_TYPES must list at least one type"))
	}
	return errors.Join(errs...)
}

func (c Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

func (c Config) TransferTimeout() time.Duration {
	return time.Duration(c.TransferTimeoutSeconds) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// AcceptedTypes splits the comma separated accept list.
func (c Config) AcceptedTypes() []string {
	var out []string
	for _, part := range strings.Split(c.AcceptedFileTypes, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

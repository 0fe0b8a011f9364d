// Package config loads gobucket settings from defaults, an optional YAML
// file, GOBUCKET_* environment variables and runtime overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap/zapcore"

	"github.com/3leaps/gobucket/internal/observability"
	"github.com/3leaps/gobucket/pkg/object"
	"github.com/3leaps/gobucket/pkg/provider"
	s3provider "github.com/3leaps/gobucket/pkg/provider/s3"
)

// Config is the effective gobucket configuration.
type Config struct {
	Endpoint       string         `mapstructure:"endpoint" yaml:"endpoint"`
	CABundle       string         `mapstructure:"ca_bundle" yaml:"ca_bundle"`
	Region         string         `mapstructure:"region" yaml:"region"`
	PathStyle      bool           `mapstructure:"path_style" yaml:"path_style"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout" yaml:"request_timeout"`
	Retry          RetryConfig    `mapstructure:"retry" yaml:"retry"`
	List           ListConfig     `mapstructure:"list" yaml:"list"`
	Transfer       TransferConfig `mapstructure:"transfer" yaml:"transfer"`
	Drain          DrainConfig    `mapstructure:"drain" yaml:"drain"`
	Logging        LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics        MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// RetryConfig bounds SDK retries.
type RetryConfig struct {
	MaxAttempts int    `mapstructure:"max_attempts" yaml:"max_attempts"`
	Mode        string `mapstructure:"mode" yaml:"mode"`
}

// ListConfig configures object listings.
type ListConfig struct {
	PageSize int `mapstructure:"page_size" yaml:"page_size"`
}

// TransferConfig configures multipart uploads and downloads.
type TransferConfig struct {
	MultipartThreshold ByteSize `mapstructure:"multipart_threshold" yaml:"multipart_threshold"`
	MaxConcurrency     int      `mapstructure:"max_concurrency" yaml:"max_concurrency"`
}

// DrainConfig configures bucket drains.
type DrainConfig struct {
	Policy    string  `mapstructure:"policy" yaml:"policy"`
	BatchSize int     `mapstructure:"batch_size" yaml:"batch_size"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig configures the optional pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" yaml:"pushgateway_url"`
	Job            string `mapstructure:"job" yaml:"job"`
}

// ByteSize is a byte count written as "25MiB", "5 MB" or a plain number.
type ByteSize int64

// ParseByteSize parses a human readable size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// String formats the size with IEC units, e.g. "25 MiB".
func (b ByteSize) String() string {
	if b < 0 {
		return fmt.Sprintf("%d B", int64(b))
	}
	return humanize.IBytes(uint64(b))
}

// MarshalYAML writes the size in its human readable form.
func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{provider.ErrInvalidConfig}, args...)...))
	}

	if c.Endpoint != "" {
		if u, err := url.Parse(c.Endpoint); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			add("endpoint %q must be an absolute http or https URL", c.Endpoint)
		}
	}
	if c.RequestTimeout < 0 {
		add("request_timeout must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		add("retry.max_attempts must be at least 1")
	}
	switch strings.ToLower(c.Retry.Mode) {
	case "standard", "adaptive":
	default:
		add("retry.mode must be standard or adaptive, got %q", c.Retry.Mode)
	}
	if c.List.PageSize < 1 || c.List.PageSize > object.MaxPageSize {
		add("list.page_size must be between 1 and %d", object.MaxPageSize)
	}
	if err := c.TransferConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := object.ParseDrainPolicy(c.Drain.Policy); err != nil {
		errs = append(errs, err)
	}
	if c.Drain.BatchSize < 1 || c.Drain.BatchSize > object.MaxDeleteBatch {
		add("drain.batch_size must be between 1 and %d", object.MaxDeleteBatch)
	}
	if c.Drain.RateLimit < 0 {
		add("drain.rate_limit must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level %q is not a log level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case observability.FormatConsole, observability.FormatJSON:
	default:
		add("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Metrics.PushgatewayURL != "" && c.Metrics.Job == "" {
		add("metrics.job is required when metrics.pushgateway_url is set")
	}

	return errors.Join(errs...)
}

// S3 returns the connection settings. Credentials come from the environment.
func (c *Config) S3() s3provider.Config {
	return s3provider.Config{
		Endpoint:       c.Endpoint,
		CABundle:       c.CABundle,
		Region:         c.Region,
		ForcePathStyle: c.PathStyle,
		MaxAttempts:    c.Retry.MaxAttempts,
		RetryMode:      c.Retry.Mode,
		RequestTimeout: c.RequestTimeout,
	}
}

// TransferConfig returns the object transfer settings.
func (c *Config) TransferConfig() object.TransferConfig {
	return object.TransferConfig{
		MultipartThreshold: int64(c.Transfer.MultipartThreshold),
		MaxConcurrency:     c.Transfer.MaxConcurrency,
	}
}

// DrainOptions returns the drain settings. An unparsable policy falls back
// to fail-fast; Validate reports it.
func (c *Config) DrainOptions() object.DrainOptions {
	policy, _ := object.ParseDrainPolicy(c.Drain.Policy)
	return object.DrainOptions{
		Policy:    policy,
		BatchSize: c.Drain.BatchSize,
		PageSize:  c.List.PageSize,
		RateLimit: c.Drain.RateLimit,
	}
}

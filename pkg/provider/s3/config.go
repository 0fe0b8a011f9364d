// Package s3 builds the connection handle for S3-compatible object stores.
package s3

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/3leaps/gobucket/pkg/provider"
)

// Environment variables holding the access credentials.
const (
	EnvAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	EnvSessionToken    = "AWS_SESSION_TOKEN"
)

// Config configures a connection to an S3-compatible store.
//
// Credentials are static. When AccessKeyID and SecretAccessKey are both
// empty, New sources them from AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY and
// fails if either is absent. The shared config files, profiles and EC2
// instance metadata are never consulted.
type Config struct {
	// Endpoint is the store URL, e.g. https://objectstore.example.net:9000.
	// Leave empty for AWS S3.
	Endpoint string

	// CABundle is a PEM file used instead of the system trust store.
	// Empty keeps the system roots.
	CABundle string

	// Region is the signing region. Defaults to us-east-1.
	Region string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey must also be set.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID is set.
	SecretAccessKey string

	// SessionToken is an optional STS session token.
	SessionToken string

	// ForcePathStyle puts the bucket in the URL path instead of the hostname.
	// The default is virtual-hosted addressing.
	ForcePathStyle bool

	// MaxAttempts bounds SDK retries, including the first attempt.
	// Zero uses DefaultMaxAttempts.
	MaxAttempts int

	// RetryMode is "standard" or "adaptive". Empty uses standard.
	RetryMode string

	// RequestTimeout bounds each HTTP request. Zero leaves it to the caller's context.
	RequestTimeout time.Duration
}

// DefaultRegion is used when Config.Region is empty.
const DefaultRegion = "us-east-1"

// DefaultMaxAttempts is the SDK attempt limit when Config.MaxAttempts is zero.
const DefaultMaxAttempts = 3

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || u.Host == "" {
			return &ConfigError{Field: "Endpoint", Message: "endpoint must be an absolute URL"}
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return &ConfigError{Field: "Endpoint", Message: "endpoint scheme must be http or https"}
		}
	}

	// If one explicit credential is set, both must be set
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}

	if c.MaxAttempts < 0 {
		return &ConfigError{Field: "MaxAttempts", Message: "max attempts must not be negative"}
	}

	if _, err := c.retryMode(); err != nil {
		return err
	}

	if c.RequestTimeout < 0 {
		return &ConfigError{Field: "RequestTimeout", Message: "request timeout must not be negative"}
	}

	return nil
}

func (c *Config) retryMode() (aws.RetryMode, error) {
	switch strings.ToLower(c.RetryMode) {
	case "", string(aws.RetryModeStandard):
		return aws.RetryModeStandard, nil
	case string(aws.RetryModeAdaptive):
		return aws.RetryModeAdaptive, nil
	default:
		return "", &ConfigError{Field: "RetryMode", Message: "retry mode must be standard or adaptive, got " + c.RetryMode}
	}
}

func (c *Config) maxAttempts() int {
	if c.MaxAttempts == 0 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

func (c *Config) region() string {
	if c.Region == "" {
		return DefaultRegion
	}
	return c.Region
}

// Credentials is a static access key pair.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// CredentialsFromEnv reads the access key pair through lookup.
// A nil lookup uses os.LookupEnv.
func CredentialsFromEnv(lookup func(string) (string, bool)) (Credentials, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var missing []string
	get := func(name string) string {
		v, ok := lookup(name)
		if !ok || v == "" {
			missing = append(missing, name)
		}
		return v
	}

	creds := Credentials{
		AccessKeyID:     get(EnvAccessKeyID),
		SecretAccessKey: get(EnvSecretAccessKey),
	}
	if len(missing) > 0 {
		return Credentials{}, &ConfigError{
			Field:   "Credentials",
			Message: "missing required environment variables: " + strings.Join(missing, ", "),
		}
	}

	if token, ok := lookup(EnvSessionToken); ok {
		creds.SessionToken = token
	}
	return creds, nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}

// Unwrap classifies every ConfigError as provider.ErrInvalidConfig.
func (e *ConfigError) Unwrap() error {
	return provider.ErrInvalidConfig
}

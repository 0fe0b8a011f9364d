package s3

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/3leaps/gobucket/pkg/provider"
)

// Client is a configured connection handle to an S3-compatible store.
//
// A Client is immutable after New returns and is safe for concurrent use.
// Bucket and object managers borrow it; none of them owns or closes it.
type Client struct {
	api      *s3.Client
	endpoint string
	region   string
}

// New creates a connection handle with the given configuration.
//
// No network I/O happens here. Missing credentials, an unreadable CA bundle
// or an invalid setting fail with a *ConfigError.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.AccessKeyID == "" {
		creds, err := CredentialsFromEnv(nil)
		if err != nil {
			return nil, err
		}
		cfg.AccessKeyID = creds.AccessKeyID
		cfg.SecretAccessKey = creds.SecretAccessKey
		if cfg.SessionToken == "" {
			cfg.SessionToken = creds.SessionToken
		}
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Build S3 client options
	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = cfg.ForcePathStyle
		},
	}

	// Custom endpoint for S3-compatible stores
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Client{
		api:      s3.NewFromConfig(awsCfg, s3Opts...),
		endpoint: cfg.Endpoint,
		region:   awsCfg.Region,
	}, nil
}

// loadAWSConfig builds the AWS configuration with static credentials and
// the bounded retry policy.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	mode, err := cfg.retryMode()
	if err != nil {
		return aws.Config{}, err
	}

	httpClient := awshttp.NewBuildableClient()
	if cfg.RequestTimeout > 0 {
		httpClient = httpClient.WithTimeout(cfg.RequestTimeout)
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.region()),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)),
		config.WithRetryMaxAttempts(cfg.maxAttempts()),
		config.WithRetryMode(mode),
		config.WithHTTPClient(httpClient),
		// Credentials are static, instance metadata lookups only add latency.
		config.WithEC2IMDSClientEnableState(imds.ClientDisabled),
	}

	if cfg.CABundle != "" {
		pem, err := os.ReadFile(cfg.CABundle)
		if err != nil {
			return aws.Config{}, &ConfigError{Field: "CABundle", Message: err.Error()}
		}
		opts = append(opts, config.WithCustomCABundle(bytes.NewReader(pem)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, &ConfigError{Field: "AWS", Message: err.Error()}
	}
	return awsCfg, nil
}

// API returns the underlying SDK client.
func (c *Client) API() *s3.Client {
	return c.api
}

// Endpoint returns the configured endpoint URL, empty for AWS S3.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Region returns the signing region.
func (c *Client) Region() string {
	return c.region
}

// WrapError converts SDK errors to provider errors with appropriate sentinel errors.
func WrapError(op, bucket, key string, err error) error {
	if err == nil {
		return nil
	}

	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderS3,
		Bucket:   bucket,
		Key:      key,
		Err:      err,
	}
	classify := func(sentinel error) error {
		wrapped.Err = sentinel
		wrapped.Cause = err
		return wrapped
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrapped
	}

	// Check for specific S3 error types first
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	var alreadyExists *types.BucketAlreadyExists
	var alreadyOwned *types.BucketAlreadyOwnedByYou

	switch {
	case errors.As(err, &noSuchBucket):
		return classify(provider.ErrBucketNotFound)
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		// HeadBucket reports a missing bucket as a bare NotFound.
		if key == "" && bucket != "" {
			return classify(provider.ErrBucketNotFound)
		}
		return classify(provider.ErrNotFound)
	case errors.As(err, &alreadyExists), errors.As(err, &alreadyOwned):
		return classify(provider.ErrBucketExists)
	}

	// Check smithy API errors for error codes
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if sentinel := sentinelForCode(apiErr.ErrorCode()); sentinel != nil {
			return classify(sentinel)
		}
		return wrapped
	}

	// No store response at all: the request never made it.
	var sendErr *smithyhttp.RequestSendError
	var netErr net.Error
	if errors.As(err, &sendErr) || errors.As(err, &netErr) {
		return classify(provider.ErrTransport)
	}

	// Fallback: check error message for common cases
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NoSuchBucket"):
		return classify(provider.ErrBucketNotFound)
	case strings.Contains(errMsg, "NoSuchKey") || strings.Contains(errMsg, "NotFound") || strings.Contains(errMsg, "404"):
		return classify(provider.ErrNotFound)
	case strings.Contains(errMsg, "BucketNotEmpty"):
		return classify(provider.ErrBucketNotEmpty)
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden") || strings.Contains(errMsg, "403"):
		return classify(provider.ErrAccessDenied)
	case strings.Contains(errMsg, "InvalidAccessKeyId") || strings.Contains(errMsg, "SignatureDoesNotMatch"):
		return classify(provider.ErrInvalidCredentials)
	case strings.Contains(errMsg, "SlowDown") || strings.Contains(errMsg, "Throttling") || strings.Contains(errMsg, "429"):
		return classify(provider.ErrThrottled)
	case strings.Contains(errMsg, "ServiceUnavailable") || strings.Contains(errMsg, "503"):
		return classify(provider.ErrProviderUnavailable)
	}

	return wrapped
}

func sentinelForCode(code string) error {
	switch code {
	case "NoSuchKey", "NotFound":
		return provider.ErrNotFound
	case "NoSuchBucket":
		return provider.ErrBucketNotFound
	case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
		return provider.ErrBucketExists
	case "BucketNotEmpty":
		return provider.ErrBucketNotEmpty
	case "InvalidBucketName":
		return provider.ErrInvalidBucketName
	case "AccessDenied", "Forbidden":
		return provider.ErrAccessDenied
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return provider.ErrInvalidCredentials
	case "SlowDown", "Throttling", "RequestLimitExceeded":
		return provider.ErrThrottled
	case "ServiceUnavailable", "InternalError":
		return provider.ErrProviderUnavailable
	}
	return nil
}

// CleanETag removes surrounding quotes from an ETag value.
// S3 returns ETags with quotes, e.g., "d41d8cd98f00b204e9800998ecf8427e".
func CleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// Package output renders command results as JSONL records or plain text.
//
// JSONL output is structured as typed record envelopes. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/gobucket/pkg/provider"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: gobucket.<type>.v<version>
const (
	// TypeBucket identifies bucket records.
	TypeBucket = "gobucket.bucket.v1"

	// TypeObject identifies object listing records.
	TypeObject = "gobucket.object.v1"

	// TypePage identifies listing page boundaries.
	TypePage = "gobucket.page.v1"

	// TypeTransfer identifies completed upload/download records.
	TypeTransfer = "gobucket.transfer.v1"

	// TypeDrain identifies drain summary records.
	TypeDrain = "gobucket.drain.v1"

	// TypeError identifies error records.
	TypeError = "gobucket.error.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "gobucket.object.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID correlates every record of one command invocation.
	JobID string `json:"job_id"`

	// Provider identifies the storage provider (e.g., "s3").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// Bucket actions.
const (
	ActionListed  = "listed"
	ActionCreated = "created"
	ActionDeleted = "deleted"
	ActionExists  = "exists"
	ActionMissing = "missing"
)

// BucketRecord is the data payload for bucket results.
type BucketRecord struct {
	Name    string     `json:"name"`
	Action  string     `json:"action"`
	Created *time.Time `json:"created,omitempty"`
}

// ObjectRecord is the data payload for object listings.
type ObjectRecord struct {
	// Bucket is the bucket the object lives in.
	Bucket string `json:"bucket"`

	// Key is the full object key (path) in the bucket.
	Key string `json:"key"`

	// Size is the object size in bytes.
	Size int64 `json:"size"`

	// ETag is the entity tag, typically an MD5 hash of the object.
	ETag string `json:"etag"`

	// LastModified is when the object was last modified.
	LastModified time.Time `json:"last_modified"`

	// StorageClass is the store-reported storage class.
	StorageClass string `json:"storage_class,omitempty"`
}

// PageRecord marks the end of one listing page.
//
// NextToken can be passed back as a start token to resume the listing
// right after this page.
type PageRecord struct {
	Index     int    `json:"index"`
	Objects   int    `json:"objects"`
	NextToken string `json:"next_token,omitempty"`
}

// Transfer directions.
const (
	DirectionUpload   = provider.DirectionUpload
	DirectionDownload = provider.DirectionDownload
)

// TransferRecord is the data payload for a completed transfer.
type TransferRecord struct {
	Direction   string        `json:"direction"`
	Bucket      string        `json:"bucket"`
	Key         string        `json:"key"`
	Path        string        `json:"path"`
	Bytes       int64         `json:"bytes"`
	ContentType string        `json:"content_type,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// DrainRecord is the data payload for a drain summary.
type DrainRecord struct {
	Bucket   string        `json:"bucket"`
	Prefix   string        `json:"prefix,omitempty"`
	Policy   string        `json:"policy"`
	Listed   int           `json:"listed"`
	Deleted  int           `json:"deleted"`
	Requests int           `json:"requests"`
	Failed   []FailedKey   `json:"failed,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// FailedKey is one key a drain could not delete.
type FailedKey struct {
	Key     string `json:"key"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorRecord is the data payload for errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Kind is the error class: configuration, request, transport, io or canceled.
	Kind string `json:"kind"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Bucket is the bucket related to this error, if applicable.
	Bucket string `json:"bucket,omitempty"`

	// Key is the object key related to this error, if applicable.
	Key string `json:"key,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeAccessDenied        = "ACCESS_DENIED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeBucketNotFound      = "BUCKET_NOT_FOUND"
	ErrCodeBucketExists        = "BUCKET_EXISTS"
	ErrCodeBucketNotEmpty      = "BUCKET_NOT_EMPTY"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeInvalidConfig       = "INVALID_CONFIG"
	ErrCodePartialDelete       = "PARTIAL_DELETE"
	ErrCodeThrottled           = "THROTTLED"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeTransport           = "TRANSPORT"
	ErrCodeIO                  = "IO"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeInternal            = "INTERNAL"
)

// ErrorCode maps an error to its ErrorRecord code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, provider.ErrInvalidConfig), errors.Is(err, provider.ErrInvalidBucketName):
		return ErrCodeInvalidConfig
	case errors.Is(err, provider.ErrPartialDelete):
		return ErrCodePartialDelete
	case provider.IsBucketNotFound(err):
		return ErrCodeBucketNotFound
	case provider.IsNotFound(err):
		return ErrCodeNotFound
	case provider.IsBucketExists(err):
		return ErrCodeBucketExists
	case provider.IsBucketNotEmpty(err):
		return ErrCodeBucketNotEmpty
	case provider.IsAccessDenied(err):
		return ErrCodeAccessDenied
	case provider.IsInvalidCredentials(err):
		return ErrCodeInvalidCredentials
	case provider.IsThrottled(err):
		return ErrCodeThrottled
	case provider.IsProviderUnavailable(err):
		return ErrCodeProviderUnavailable
	case provider.IsTransport(err):
		return ErrCodeTransport
	case provider.Classify(err) == provider.KindIO:
		return ErrCodeIO
	default:
		return ErrCodeInternal
	}
}

// NewErrorRecord builds an ErrorRecord for err.
func NewErrorRecord(err error, bucket, key string) *ErrorRecord {
	return &ErrorRecord{
		Code:    ErrorCode(err),
		Kind:    provider.Classify(err).String(),
		Message: err.Error(),
		Bucket:  bucket,
		Key:     key,
	}
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

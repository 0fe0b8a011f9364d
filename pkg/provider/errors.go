package provider

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Sentinel errors for storage operations.
var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrBucketExists indicates a create was issued for a bucket that already exists.
	ErrBucketExists = errors.New("bucket already exists")

	// ErrBucketNotEmpty indicates a delete was issued for a bucket that still holds objects.
	ErrBucketNotEmpty = errors.New("bucket not empty")

	// ErrInvalidBucketName indicates the bucket name fails naming rules.
	ErrInvalidBucketName = errors.New("invalid bucket name")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProviderUnavailable indicates the storage service is unavailable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrThrottled indicates the request was rate limited by the store.
	ErrThrottled = errors.New("request throttled")

	// ErrTransport indicates the request never produced a store response
	// (connection refused, TLS failure, DNS, reset mid-body).
	ErrTransport = errors.New("transport failure")

	// ErrInvalidConfig indicates missing credentials or invalid client configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPartialDelete indicates a bulk delete left some objects behind.
	ErrPartialDelete = errors.New("objects left undeleted")
)

// ProviderError wraps store errors with operation context.
type ProviderError struct {
	// Op is the operation that failed (e.g., "CreateBucket", "ListObjects").
	Op string

	// Provider is the provider type (e.g., "s3").
	Provider ProviderType

	// Bucket is the bucket name, if applicable.
	Bucket string

	// Key is the object key, if applicable.
	Key string

	// Err is the classified error. It is a sentinel when the failure
	// could be classified, otherwise the raw cause.
	Err error

	// Cause is the raw SDK error behind a classified Err.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := fmt.Sprint(e.Err)
	if e.Cause != nil && e.Cause != e.Err {
		msg = fmt.Sprintf("%v (%v)", e.Err, e.Cause)
	}
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s/%s: %s", e.Provider, e.Op, e.Bucket, e.Key, msg)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Provider, e.Op, e.Bucket, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, msg)
}

// Unwrap returns the classified and raw errors for errors.Is/As support.
func (e *ProviderError) Unwrap() []error {
	if e.Cause == nil || e.Cause == e.Err {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Kind groups errors by how callers are expected to react to them.
type Kind int

const (
	// KindNone is returned for a nil error.
	KindNone Kind = iota

	// KindConfiguration covers missing credentials and invalid settings. Fatal, never retried.
	KindConfiguration

	// KindRequest covers well-formed requests the store rejected.
	KindRequest

	// KindTransport covers connectivity failures and unavailable services.
	KindTransport

	// KindIO covers local file open/read/write failures.
	KindIO

	// KindCanceled covers context cancellation and deadlines.
	KindCanceled
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConfiguration:
		return "configuration"
	case KindRequest:
		return "request"
	case KindTransport:
		return "transport"
	case KindIO:
		return "io"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Classify maps an error to its Kind.
//
// Unclassified store errors are reported as KindRequest.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidBucketName):
		return KindConfiguration
	case errors.Is(err, ErrTransport), errors.Is(err, ErrProviderUnavailable):
		return KindTransport
	}

	var pathErr *fs.PathError
	var linkErr *os.LinkError
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) {
		return KindIO
	}

	return KindRequest
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsBucketNotFound returns true if the error indicates the bucket does not exist.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsBucketExists returns true if the error indicates the bucket already exists.
func IsBucketExists(err error) bool {
	return errors.Is(err, ErrBucketExists)
}

// IsBucketNotEmpty returns true if the error indicates the bucket still holds objects.
func IsBucketNotEmpty(err error) bool {
	return errors.Is(err, ErrBucketNotEmpty)
}

// IsInvalidCredentials returns true if the error indicates authentication failed.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsProviderUnavailable returns true if the error indicates the store is unavailable.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// IsThrottled returns true if the error indicates the request was rate limited.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsTransport returns true if the error indicates a connectivity failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

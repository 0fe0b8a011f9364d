package object

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/gobucket/pkg/provider"
)

// MaxDeleteBatch is the most keys one DeleteObjects request accepts.
const MaxDeleteBatch = 1000

// DrainPolicy decides what a drain does after a key fails to delete.
type DrainPolicy int

const (
	// FailFast stops after the first delete request that reports a failure.
	FailFast DrainPolicy = iota

	// BestEffort keeps deleting and reports every failed key at the end.
	BestEffort
)

// String returns the policy name used in configuration.
func (p DrainPolicy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case BestEffort:
		return "best-effort"
	default:
		return fmt.Sprintf("DrainPolicy(%d)", int(p))
	}
}

// ParseDrainPolicy parses "fail-fast" or "best-effort".
func ParseDrainPolicy(s string) (DrainPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail-fast", "failfast":
		return FailFast, nil
	case "best-effort", "besteffort":
		return BestEffort, nil
	default:
		return FailFast, fmt.Errorf("%w: unknown drain policy %q (want fail-fast or best-effort)", provider.ErrInvalidConfig, s)
	}
}

// DrainOptions configures DeleteAll.
type DrainOptions struct {
	// Policy is FailFast unless set.
	Policy DrainPolicy

	// BatchSize is the number of keys per delete request.
	// 1 issues one DeleteObject per key; anything larger uses DeleteObjects.
	// Default: 1000. Maximum: 1000.
	BatchSize int

	// Prefix limits the drain to keys starting with this value.
	Prefix string

	// PageSize is the listing page size. Zero uses DefaultPageSize.
	PageSize int

	// RateLimit caps delete requests per second. Zero means unlimited.
	RateLimit float64
}

func (o DrainOptions) withDefaults() (DrainOptions, error) {
	if o.BatchSize == 0 {
		o.BatchSize = MaxDeleteBatch
	}
	if o.BatchSize < 1 || o.BatchSize > MaxDeleteBatch {
		return o, fmt.Errorf("%w: batch size must be between 1 and %d, got %d", provider.ErrInvalidConfig, MaxDeleteBatch, o.BatchSize)
	}
	if o.RateLimit < 0 {
		return o, fmt.Errorf("%w: rate limit must not be negative", provider.ErrInvalidConfig)
	}
	if o.Policy != FailFast && o.Policy != BestEffort {
		return o, fmt.Errorf("%w: unknown drain policy %s", provider.ErrInvalidConfig, o.Policy)
	}
	return o, nil
}

// KeyError describes one key the store refused to delete.
type KeyError struct {
	Key     string
	Code    string
	Message string
}

// Error implements the error interface.
func (e KeyError) Error() string {
	return e.Key + ": " + e.Code + ": " + e.Message
}

// DrainResult summarizes a DeleteAll call. It is returned even when the
// drain fails part way.
type DrainResult struct {
	// Listed is the number of keys enumerated.
	Listed int

	// Deleted is the number of keys confirmed removed.
	Deleted int

	// Requests is the number of delete requests issued.
	Requests int

	// Failed holds the keys that survived, in the order they were attempted.
	Failed []KeyError
}

// DrainError reports keys that could not be deleted. Keys deleted before
// the failure stay deleted.
type DrainError struct {
	Bucket  string
	Policy  DrainPolicy
	Deleted int
	Failed  []KeyError
}

// Error implements the error interface.
func (e *DrainError) Error() string {
	msg := fmt.Sprintf("drain s3://%s (%s): %d deleted, %d not deleted", e.Bucket, e.Policy, e.Deleted, len(e.Failed))
	if len(e.Failed) > 0 {
		msg += ", first: " + e.Failed[0].Error()
	}
	return msg
}

// Unwrap classifies a DrainError as provider.ErrPartialDelete.
func (e *DrainError) Unwrap() error {
	return provider.ErrPartialDelete
}

// DeleteAll drains bucket (or the keys under opts.Prefix) page by page,
// deleting each page in batches in listing order.
//
// Per-key failures are handled according to opts.Policy and reported as a
// *DrainError. A listing failure always stops the drain and is returned as
// is. There is no rollback. An empty bucket issues no delete requests.
func (m *Manager) DeleteAll(ctx context.Context, bucket string, opts DrainOptions) (result *DrainResult, err error) {
	start := time.Now()
	defer func() { m.observe("delete_all", start, err) }()

	result = &DrainResult{}
	log := m.log.With(zap.String("bucket", bucket), zap.String("prefix", opts.Prefix))

	opts, err = opts.withDefaults()
	if err != nil {
		log.Error("Drain failed", zap.Error(err))
		return result, err
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	defer func() { m.recorder.AddDeleted(result.Deleted) }()

	pager := m.List(bucket, provider.ListOptions{Prefix: opts.Prefix, PageSize: opts.PageSize})
	stop := false
	for !stop {
		page, ok, listErr := pager.Next(ctx)
		if listErr != nil {
			log.Error("Drain aborted", zap.Int("deleted", result.Deleted), zap.Error(listErr))
			return result, listErr
		}
		if !ok {
			break
		}
		result.Listed += page.Len()

		keys := page.Keys()
		for i := 0; i < len(keys); i += opts.BatchSize {
			batch := keys[i:min(i+opts.BatchSize, len(keys))]

			if limiter != nil {
				if werr := limiter.Wait(ctx); werr != nil {
					log.Error("Drain aborted", zap.Int("deleted", result.Deleted), zap.Error(werr))
					return result, werr
				}
			}

			failed, reqErr := m.deleteBatch(ctx, bucket, batch, opts.BatchSize == 1)
			result.Requests++
			if reqErr != nil {
				if errors.Is(reqErr, context.Canceled) || errors.Is(reqErr, context.DeadlineExceeded) {
					log.Error("Drain aborted", zap.Int("deleted", result.Deleted), zap.Error(reqErr))
					return result, reqErr
				}
				failed = failBatch(batch, reqErr)
			}

			result.Deleted += len(batch) - len(failed)
			result.Failed = append(result.Failed, failed...)
			if len(failed) > 0 && opts.Policy == FailFast {
				stop = true
				break
			}
		}
	}

	if len(result.Failed) > 0 {
		err = &DrainError{Bucket: bucket, Policy: opts.Policy, Deleted: result.Deleted, Failed: result.Failed}
		log.Error("Drain incomplete",
			zap.Int("deleted", result.Deleted),
			zap.Int("failed", len(result.Failed)),
			zap.Error(err))
		return result, err
	}

	log.Info("Drained objects",
		zap.Int("deleted", result.Deleted),
		zap.Int("requests", result.Requests))
	return result, nil
}

// deleteBatch removes keys in one request. It returns the keys the store
// reported as failed, or an error when the request itself failed.
func (m *Manager) deleteBatch(ctx context.Context, bucket string, keys []string, perKey bool) ([]KeyError, error) {
	if perKey {
		start := time.Now()
		_, err := m.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(keys[0]),
		})
		err = wrap("DeleteObject", bucket, keys[0], err)
		m.observe("delete", start, err)
		return nil, err
	}

	ids := make([]types.ObjectIdentifier, len(keys))
	for i, key := range keys {
		ids[i] = types.ObjectIdentifier{Key: aws.String(key)}
	}

	start := time.Now()
	out, err := m.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(false)},
	})
	err = wrap("DeleteObjects", bucket, "", err)
	m.observe("delete", start, err)
	if err != nil {
		return nil, err
	}

	var failed []KeyError
	for _, e := range out.Errors {
		failed = append(failed, KeyError{
			Key:     aws.ToString(e.Key),
			Code:    aws.ToString(e.Code),
			Message: aws.ToString(e.Message),
		})
	}
	return failed, nil
}

// failBatch marks every key of a rejected request as failed.
func failBatch(keys []string, err error) []KeyError {
	code := "RequestError"
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	} else if provider.Classify(err) == provider.KindTransport {
		code = "TransportError"
	}

	failed := make([]KeyError, len(keys))
	for i, key := range keys {
		failed[i] = KeyError{Key: key, Code: code, Message: err.Error()}
	}
	return failed
}

// Package bucket creates, deletes and enumerates buckets.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/3leaps/gobucket/pkg/object"
	"github.com/3leaps/gobucket/pkg/provider"
	s3provider "github.com/3leaps/gobucket/pkg/provider/s3"
)

// listPageSize is the MaxBuckets value sent with each ListBuckets request.
const listPageSize = 1000

// API is the subset of the S3 client the bucket manager needs.
// *s3.Client satisfies it.
type API interface {
	s3.ListBucketsAPIClient
	s3.HeadBucketAPIClient
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// Drainer empties a bucket before a forced delete. *object.Manager
// satisfies it.
type Drainer interface {
	DeleteAll(ctx context.Context, bucket string, opts object.DrainOptions) (*object.DrainResult, error)
}

// Bucket describes one bucket visible to the caller's credentials.
type Bucket struct {
	Name    string
	Created time.Time
}

// Manager performs bucket operations against one store.
type Manager struct {
	api      API
	drainer  Drainer
	drain    object.DrainOptions
	region   string
	log      *zap.Logger
	recorder provider.Recorder
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithRecorder sets the operation recorder.
func WithRecorder(r provider.Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithDrainer sets what empties a bucket on a forced delete.
func WithDrainer(d Drainer) Option {
	return func(m *Manager) {
		m.drainer = d
	}
}

// WithDrainOptions sets the options used for forced deletes.
func WithDrainOptions(opts object.DrainOptions) Option {
	return func(m *Manager) {
		m.drain = opts
	}
}

// WithRegion sets the location constraint sent on create. Empty and
// us-east-1 send none.
func WithRegion(region string) Option {
	return func(m *Manager) {
		m.region = region
	}
}

// NewManager creates a bucket manager over api.
func NewManager(api API, opts ...Option) (*Manager, error) {
	if api == nil {
		return nil, fmt.Errorf("%w: bucket manager requires an S3 client", provider.ErrInvalidConfig)
	}

	m := &Manager{
		api:      api,
		log:      zap.NewNop(),
		recorder: provider.NopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) observe(op string, start time.Time, err error) {
	m.recorder.ObserveOperation(op, err, time.Since(start))
}

// Create creates a bucket. Creating a bucket that already exists fails
// with provider.ErrBucketExists.
func (m *Manager) Create(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() { m.observe("bucket_create", start, err) }()
	log := m.log.With(zap.String("bucket", name))

	if err = provider.ValidateBucketName(name); err != nil {
		log.Error("Bucket create failed", zap.Error(err))
		return err
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if m.region != "" && m.region != s3provider.DefaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(m.region),
		}
	}

	if _, err = m.api.CreateBucket(ctx, input); err != nil {
		err = s3provider.WrapError("CreateBucket", name, "", err)
		log.Error("Bucket create failed", zap.Error(err))
		return err
	}

	log.Info("Created bucket")
	return nil
}

// Delete removes a bucket. Without force a non-empty bucket fails with
// provider.ErrBucketNotEmpty. With force the bucket is drained first; if
// the drain does not complete, the bucket is left in place and the drain
// error is returned.
func (m *Manager) Delete(ctx context.Context, name string, force bool) (err error) {
	start := time.Now()
	defer func() { m.observe("bucket_delete", start, err) }()
	log := m.log.With(zap.String("bucket", name), zap.Bool("force", force))

	if err = provider.ValidateBucketName(name); err != nil {
		log.Error("Bucket delete failed", zap.Error(err))
		return err
	}

	if force {
		if m.drainer == nil {
			err = fmt.Errorf("%w: forced delete requires a drainer", provider.ErrInvalidConfig)
			log.Error("Bucket delete failed", zap.Error(err))
			return err
		}
		result, drainErr := m.drainer.DeleteAll(ctx, name, m.drain)
		if drainErr != nil {
			err = fmt.Errorf("drain before delete: %w", drainErr)
			log.Error("Bucket delete failed", zap.Error(err))
			return err
		}
		log.Debug("Drained bucket before delete", zap.Int("deleted", result.Deleted))
	}

	if _, err = m.api.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)}); err != nil {
		err = s3provider.WrapError("DeleteBucket", name, "", err)
		log.Error("Bucket delete failed", zap.Error(err))
		return err
	}

	log.Info("Deleted bucket")
	return nil
}

// List returns the buckets owned by the caller in store order. An account
// without buckets yields an empty, non-nil slice.
func (m *Manager) List(ctx context.Context) (buckets []Bucket, err error) {
	start := time.Now()
	defer func() { m.observe("bucket_list", start, err) }()

	buckets = []Bucket{}
	paginator := s3.NewListBucketsPaginator(m.api, &s3.ListBucketsInput{
		MaxBuckets: aws.Int32(listPageSize),
	})
	for paginator.HasMorePages() {
		out, pageErr := paginator.NextPage(ctx)
		if pageErr != nil {
			err = s3provider.WrapError("ListBuckets", "", "", pageErr)
			m.log.Error("Bucket list failed", zap.Int("listed", len(buckets)), zap.Error(err))
			return nil, err
		}
		for _, b := range out.Buckets {
			buckets = append(buckets, Bucket{
				Name:    aws.ToString(b.Name),
				Created: aws.ToTime(b.CreationDate),
			})
		}
	}

	m.log.Info("Listed buckets", zap.Int("count", len(buckets)))
	return buckets, nil
}

// Names returns the names of the caller's buckets.
func (m *Manager) Names(ctx context.Context) ([]string, error) {
	buckets, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(buckets))
	for i, b := range buckets {
		names[i] = b.Name
	}
	return names, nil
}

// Exists reports whether a bucket exists and is reachable with the
// caller's credentials.
func (m *Manager) Exists(ctx context.Context, name string) (exists bool, err error) {
	start := time.Now()
	defer func() { m.observe("bucket_exists", start, err) }()

	if err = provider.ValidateBucketName(name); err != nil {
		return false, err
	}

	_, err = m.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err == nil {
		return true, nil
	}

	err = s3provider.WrapError("HeadBucket", name, "", err)
	if errors.Is(err, provider.ErrBucketNotFound) {
		return false, nil
	}
	m.log.Error("Bucket check failed", zap.String("bucket", name), zap.Error(err))
	return false, err
}

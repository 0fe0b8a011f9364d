// Package object moves objects in and out of a bucket and enumerates or
// drains its contents.
//
// A Manager borrows the SDK client of a connection handle. Every public
// operation logs once at its own boundary and returns a typed error, so a
// caller can always tell "nothing there" apart from "the call failed".
package object

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/3leaps/gobucket/pkg/provider"
	s3provider "github.com/3leaps/gobucket/pkg/provider/s3"
)

// API is the subset of the S3 client the object manager needs.
// *s3.Client satisfies it.
type API interface {
	manager.UploadAPIClient
	manager.DownloadAPIClient
	s3.ListObjectsV2APIClient
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Manager performs object operations against one store.
//
// The transfer configuration is fixed for the lifetime of the Manager.
// A Manager is safe for concurrent use.
type Manager struct {
	api        API
	transfer   TransferConfig
	uploader   *manager.Uploader
	downloader *manager.Downloader
	log        *zap.Logger
	recorder   provider.Recorder
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

// WithTransferConfig overrides DefaultTransferConfig.
func WithTransferConfig(cfg TransferConfig) Option {
	return func(m *Manager) {
		m.transfer = cfg
	}
}

// NewManager creates an object manager over api.
func NewManager(api API, opts ...Option) (*Manager, error) {
	if api == nil {
		return nil, fmt.Errorf("%w: object manager requires an S3 client", provider.ErrInvalidConfig)
	}

	m := &Manager{
		api:      api,
		transfer: DefaultTransferConfig(),
		log:      zap.NewNop(),
		recorder: provider.NopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.transfer.Validate(); err != nil {
		return nil, err
	}

	m.uploader = manager.NewUploader(api, func(u *manager.Uploader) {
		u.PartSize = m.transfer.MultipartThreshold
		u.Concurrency = m.transfer.MaxConcurrency
	})
	m.downloader = manager.NewDownloader(api, func(d *manager.Downloader) {
		d.PartSize = m.transfer.MultipartThreshold
		d.Concurrency = m.transfer.MaxConcurrency
	})
	return m, nil
}

// TransferConfig returns the transfer settings in effect.
func (m *Manager) TransferConfig() TransferConfig {
	return m.transfer
}

func (m *Manager) observe(op string, start time.Time, err error) {
	m.recorder.ObserveOperation(op, err, time.Since(start))
}

func wrap(op, bucket, key string, err error) error {
	return s3provider.WrapError(op, bucket, key, err)
}

package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/3leaps/gobucket/pkg/provider"
)

const (
	// MiB is one mebibyte.
	MiB int64 = 1 << 20

	// DefaultMultipartThreshold is the size above which transfers are split into parts.
	DefaultMultipartThreshold = 25 * MiB

	// MinMultipartThreshold is the smallest part size S3 accepts.
	MinMultipartThreshold = manager.MinUploadPartSize

	// DefaultMaxConcurrency bounds concurrent part transfers per call.
	DefaultMaxConcurrency = 10
)

// TransferConfig controls multipart transfers.
type TransferConfig struct {
	// MultipartThreshold is both the size above which a transfer uses
	// multiple parts and the size of each part.
	// Default: 25 MiB. Minimum: 5 MiB.
	MultipartThreshold int64

	// MaxConcurrency is the number of parts moved in parallel.
	// Default: 10
	MaxConcurrency int
}

// DefaultTransferConfig returns the default transfer configuration.
func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		MultipartThreshold: DefaultMultipartThreshold,
		MaxConcurrency:     DefaultMaxConcurrency,
	}
}

// Validate checks that the configuration is usable.
func (c TransferConfig) Validate() error {
	if c.MultipartThreshold < MinMultipartThreshold {
		return fmt.Errorf("%w: multipart threshold %d is below the %d byte minimum",
			provider.ErrInvalidConfig, c.MultipartThreshold, MinMultipartThreshold)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("%w: max concurrency must be at least 1", provider.ErrInvalidConfig)
	}
	return nil
}

// ProgressFunc observes a transfer. It receives the cumulative number of
// bytes moved so far; successive values never decrease.
type ProgressFunc func(transferred int64)

type transferOptions struct {
	contentType string
	progress    ProgressFunc
}

// TransferOption configures a single Upload or Download call.
type TransferOption func(*transferOptions)

// WithContentType sets the Content-Type of an upload instead of sniffing it.
func WithContentType(contentType string) TransferOption {
	return func(o *transferOptions) {
		o.contentType = contentType
	}
}

// WithProgress registers a progress observer.
func WithProgress(fn ProgressFunc) TransferOption {
	return func(o *transferOptions) {
		o.progress = fn
	}
}

func applyTransferOptions(opts []TransferOption) transferOptions {
	var o transferOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Upload stores the file at localPath under key. An empty key uses the
// file's base name.
//
// Files up to the multipart threshold go up in a single request; larger
// files are split into parts sent concurrently.
func (m *Manager) Upload(ctx context.Context, bucket, localPath, key string, opts ...TransferOption) (err error) {
	start := time.Now()
	defer func() { m.observe("upload", start, err) }()

	if key == "" {
		key = filepath.Base(localPath)
	}
	o := applyTransferOptions(opts)
	log := m.log.With(zap.String("bucket", bucket), zap.String("key", key), zap.String("path", localPath))

	f, err := os.Open(localPath)
	if err != nil {
		log.Error("Upload failed", zap.Error(err))
		return err
	}
	defer func() { _ = f.Close() }()

	contentType := o.contentType
	if contentType == "" {
		contentType, err = detectContentType(f)
		if err != nil {
			log.Error("Upload failed", zap.Error(err))
			return err
		}
	}

	body := &progressFile{f: f, fn: o.progress}
	_, err = m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		err = wrap("Upload", bucket, key, err)
		log.Error("Upload failed", zap.Error(err))
		return err
	}

	n := body.Total()
	m.recorder.AddTransferred(provider.DirectionUpload, n)
	log.Info("Uploaded object", zap.Int64("bytes", n), zap.String("content_type", contentType))
	return nil
}

// Download writes the object at key to localPath, replacing any existing
// file. The object is received into a temporary file in the same directory
// and renamed over localPath only once complete, so a failed download
// leaves a previous file untouched and no partial file behind.
func (m *Manager) Download(ctx context.Context, bucket, key, localPath string, opts ...TransferOption) (err error) {
	start := time.Now()
	defer func() { m.observe("download", start, err) }()

	o := applyTransferOptions(opts)
	log := m.log.With(zap.String("bucket", bucket), zap.String("key", key), zap.String("path", localPath))

	if key == "" {
		err = fmt.Errorf("%w: object key is required", provider.ErrInvalidConfig)
		log.Error("Download failed", zap.Error(err))
		return err
	}

	mode := fs.FileMode(0o644)
	if info, statErr := os.Stat(localPath); statErr == nil {
		mode = info.Mode().Perm()
	}

	f, err := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+".*.part")
	if err != nil {
		log.Error("Download failed", zap.Error(err))
		return err
	}
	tmp := f.Name()

	w := &progressWriterAt{w: f, fn: o.progress}
	n, dlErr := m.downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	closeErr := f.Close()

	switch {
	case dlErr != nil:
		err = wrap("Download", bucket, key, dlErr)
	case closeErr != nil:
		err = closeErr
	default:
		if err = os.Chmod(tmp, mode); err == nil {
			err = os.Rename(tmp, localPath)
		}
	}
	if err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn("Failed to remove partial download", zap.String("temp", tmp), zap.Error(rmErr))
		}
		log.Error("Download failed", zap.Error(err))
		return err
	}

	m.recorder.AddTransferred(provider.DirectionDownload, n)
	log.Info("Downloaded object", zap.Int64("bytes", n))
	return nil
}

// detectContentType sniffs the MIME type from the head of f and rewinds it.
func detectContentType(f *os.File) (string, error) {
	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return mtype.String(), nil
}

// progressFile counts bytes of the upload source read by the uploader. It
// keeps io.ReaderAt and io.Seeker visible so parts stream from file
// sections instead of pooled buffers. Each file offset is counted once,
// so a part re-read for signing or checksums does not inflate the total.
type progressFile struct {
	f  *os.File
	fn ProgressFunc

	mu    sync.Mutex
	pos   int64
	seen  []span
	total int64
}

// span is a half-open byte range [start, end).
type span struct{ start, end int64 }

func (p *progressFile) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.f.Read(b)
	if n > 0 {
		p.markLocked(p.pos, int64(n))
		p.pos += int64(n)
	}
	return n, err
}

func (p *progressFile) ReadAt(b []byte, off int64) (int, error) {
	n, err := p.f.ReadAt(b, off)
	if n > 0 {
		p.mu.Lock()
		p.markLocked(off, int64(n))
		p.mu.Unlock()
	}
	return n, err
}

func (p *progressFile) Seek(offset int64, whence int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, err := p.f.Seek(offset, whence)
	if err == nil {
		p.pos = pos
	}
	return pos, err
}

// markLocked records [off, off+n) and reports the new total when any of
// it had not been read before. p.mu must be held.
func (p *progressFile) markLocked(off, n int64) {
	start, end := off, off+n
	added := end - start

	merged := p.seen[:0:0]
	for _, s := range p.seen {
		if s.end < start || s.start > end {
			merged = append(merged, s)
			continue
		}
		if overlap := min(s.end, off+n) - max(s.start, off); overlap > 0 {
			added -= overlap
		}
		start, end = min(s.start, start), max(s.end, end)
	}
	// Keep spans ordered by start.
	i := 0
	for i < len(merged) && merged[i].start < start {
		i++
	}
	merged = append(merged, span{})
	copy(merged[i+1:], merged[i:])
	merged[i] = span{start, end}
	p.seen = merged

	if added <= 0 {
		return
	}
	p.total += added
	if p.fn != nil {
		p.fn(p.total)
	}
}

func (p *progressFile) Total() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// progressWriterAt counts bytes written by concurrent part downloads.
// The observer runs under the lock so totals arrive in order.
type progressWriterAt struct {
	w     io.WriterAt
	fn    ProgressFunc
	mu    sync.Mutex
	total int64
}

func (p *progressWriterAt) WriteAt(b []byte, off int64) (int, error) {
	n, err := p.w.WriteAt(b, off)
	if n > 0 {
		p.mu.Lock()
		p.total += int64(n)
		if p.fn != nil {
			p.fn(p.total)
		}
		p.mu.Unlock()
	}
	return n, err
}

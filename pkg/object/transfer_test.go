package object

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gobucket/internal/testutil"
	"github.com/3leaps/gobucket/pkg/provider"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func randomBytes(t *testing.T, n int64) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// progressLog records observer calls and checks they never go backwards.
type progressLog struct {
	mu     sync.Mutex
	values []int64
}

func (p *progressLog) observe(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, n)
}

func (p *progressLog) assertMonotonic(t *testing.T, total int64) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.values)
	for i := 1; i < len(p.values); i++ {
		assert.GreaterOrEqual(t, p.values[i], p.values[i-1])
	}
	assert.Equal(t, total, p.values[len(p.values)-1])
}

func TestUploadDownload_RoundTrip(t *testing.T) {
	small := TransferConfig{MultipartThreshold: 5 * MiB, MaxConcurrency: 4}
	tests := []struct {
		name          string
		size          int64
		cfg           TransferConfig
		wantMultipart bool
		long          bool
	}{
		{name: "1KiB single part", size: 1024, cfg: small},
		{name: "6MiB multipart", size: 6 * MiB, cfg: small, wantMultipart: true},
		{name: "30MiB default config", size: 30 * MiB, cfg: DefaultTransferConfig(), wantMultipart: true, long: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.long && testing.Short() {
				t.Skip("large transfer skipped in short mode")
			}

			store := testutil.NewMemoryStore()
			store.AddBucket("bkt")
			rec := newSpyRecorder()
			m := newTestManager(t, store, WithTransferConfig(tt.cfg), WithRecorder(rec))

			content := randomBytes(t, tt.size)
			src := writeTemp(t, "payload.bin", content)

			var up progressLog
			require.NoError(t, m.Upload(context.Background(), "bkt", src, "data/payload.bin", WithProgress(up.observe)))
			up.assertMonotonic(t, tt.size)

			if tt.wantMultipart {
				assert.Equal(t, 1, store.Calls("CreateMultipartUpload"))
				assert.Equal(t, 1, store.Calls("CompleteMultipartUpload"))
				assert.Zero(t, store.Calls("PutObject"))
			} else {
				assert.Equal(t, 1, store.Calls("PutObject"))
				assert.Zero(t, store.Calls("CreateMultipartUpload"))
			}

			stored, _, ok := store.Object("bkt", "data/payload.bin")
			require.True(t, ok)
			assert.True(t, bytes.Equal(content, stored))

			dst := filepath.Join(t.TempDir(), "out.bin")
			var down progressLog
			require.NoError(t, m.Download(context.Background(), "bkt", "data/payload.bin", dst, WithProgress(down.observe)))
			down.assertMonotonic(t, tt.size)

			got, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(content, got), "downloaded content differs")

			assert.Equal(t, tt.size, rec.transferred[provider.DirectionUpload])
			assert.Equal(t, tt.size, rec.transferred[provider.DirectionDownload])
			assert.Equal(t, 1, rec.ops["upload"])
			assert.Equal(t, 1, rec.ops["download"])
		})
	}
}

func TestUpload_DefaultKeyAndContentType(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.AddBucket("bkt")
	m := newTestManager(t, store)

	src := writeTemp(t, "hello.txt", []byte("hi"))
	require.NoError(t, m.Upload(context.Background(), "bkt", src, ""))

	data, contentType, ok := store.Object("bkt", "hello.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("hi"), data)
	assert.Contains(t, contentType, "text/plain")
}

func TestUpload_ExplicitContentType(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.AddBucket("bkt")
	m := newTestManager(t, store)

	src := writeTemp(t, "doc", []byte(`{"a":1}`))
	require.NoError(t, m.Upload(context.Background(), "bkt", src, "doc.json", WithContentType("application/json")))

	_, contentType, ok := store.Object("bkt", "doc.json")
	require.True(t, ok)
	assert.Equal(t, "application/json", contentType)
}

func TestUpload_MissingFile(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.AddBucket("bkt")
	rec := newSpyRecorder()
	m := newTestManager(t, store, WithRecorder(rec))

	err := m.Upload(context.Background(), "bkt", filepath.Join(t.TempDir(), "absent.txt"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, provider.KindIO, provider.Classify(err))
	assert.Zero(t, store.Calls("PutObject"))
	assert.Equal(t, 1, rec.failures["upload"])
}

func TestUpload_MissingBucket(t *testing.T) {
	m := newTestManager(t, testutil.NewMemoryStore())

	err := m.Upload(context.Background(), "nope", writeTemp(t, "a.txt", []byte("a")), "")
	require.Error(t, err)
	assert.True(t, provider.IsBucketNotFound(err))
	assert.Equal(t, provider.KindRequest, provider.Classify(err))
}

// bodyTypeStore records the concrete body type of every uploaded part.
type bodyTypeStore struct {
	*testutil.MemoryStore

	mu    sync.Mutex
	parts []string
}

func (b *bodyTypeStore) UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	b.mu.Lock()
	b.parts = append(b.parts, fmt.Sprintf("%T", in.Body))
	b.mu.Unlock()
	return b.MemoryStore.UploadPart(ctx, in, optFns...)
}

func TestUpload_StreamsFileSections(t *testing.T) {
	store := &bodyTypeStore{MemoryStore: testutil.NewMemoryStore()}
	store.AddBucket("bkt")
	m := newTestManager(t, store, WithTransferConfig(TransferConfig{MultipartThreshold: 5 * MiB, MaxConcurrency: 2}))

	content := randomBytes(t, 12*MiB)
	src := writeTemp(t, "big.bin", content)

	var up progressLog
	require.NoError(t, m.Upload(context.Background(), "bkt", src, "big.bin", WithProgress(up.observe)))
	up.assertMonotonic(t, 12*MiB)

	// Parts read straight from the file rather than from pooled copies.
	assert.Equal(t, []string{"*io.SectionReader", "*io.SectionReader", "*io.SectionReader"}, store.parts)

	stored, _, ok := store.Object("bkt", "big.bin")
	require.True(t, ok)
	assert.True(t, bytes.Equal(content, stored))
}

func TestProgressFile_CountsEachByteOnce(t *testing.T) {
	f, err := os.Open(writeTemp(t, "src.bin", randomBytes(t, 100)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	var _ interface {
		io.ReaderAt
		io.ReadSeeker
	} = (*progressFile)(nil)

	var got progressLog
	p := &progressFile{f: f, fn: got.observe}
	buf := make([]byte, 40)

	steps := []struct {
		name string
		read func() error
		want int64
	}{
		{"first part", func() error { _, err := p.ReadAt(buf, 0); return err }, 40},
		{"re-read first part", func() error { _, err := p.ReadAt(buf, 0); return err }, 40},
		{"disjoint part", func() error { _, err := p.ReadAt(buf[:20], 60); return err }, 60},
		{"overlapping gap", func() error { _, err := p.ReadAt(buf[:30], 30); return err }, 80},
		{"sequential read after seek", func() error {
			if _, err := p.Seek(90, io.SeekStart); err != nil {
				return err
			}
			_, err := p.Read(buf)
			return err
		}, 90},
		{"rewind and read all", func() error {
			if _, err := p.Seek(0, io.SeekStart); err != nil {
				return err
			}
			_, err := io.ReadAll(p)
			return err
		}, 100},
	}

	for _, step := range steps {
		require.NoError(t, step.read(), step.name)
		assert.Equal(t, step.want, p.Total(), step.name)
	}
	got.assertMonotonic(t, 100)
}

func TestDownload_FailedOverwriteKeepsExistingFile(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.AddBucket("bkt")
	m := newTestManager(t, store)

	dst := writeTemp(t, "keep.txt", []byte("precious"))
	err := m.Download(context.Background(), "bkt", "missing", dst)
	require.Error(t, err)
	assert.True(t, provider.IsNotFound(err))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "precious", string(got))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary download file left behind")
	assert.Equal(t, "keep.txt", entries[0].Name())
}

func TestDownload_KeepsExistingFileMode(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.AddObject("bkt", "secret.txt", []byte("new"))
	m := newTestManager(t, store)

	dst := writeTemp(t, "secret.txt", []byte("old"))
	require.NoError(t, os.Chmod(dst, 0o600))
	require.NoError(t, m.Download(context.Background(), "bkt", "secret.txt", dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o600), info.Mode().Perm())
}

func TestDownload_OverwritesExistingFile(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.AddObject("bkt", "hello.txt", []byte("hi"))
	m := newTestManager(t, store)

	dst := writeTemp(t, "hello.txt", []byte("a much longer previous content"))
	require.NoError(t, m.Download(context.Background(), "bkt", "hello.txt", dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))
}

func TestDownload_MissingKeyLeavesNoFile(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.AddBucket("bkt")
	m := newTestManager(t, store)

	dst := filepath.Join(t.TempDir(), "out.txt")
	err := m.Download(context.Background(), "bkt", "absent.txt", dst)
	require.Error(t, err)
	assert.True(t, provider.IsNotFound(err))

	_, statErr := os.Stat(dst)
	assert.ErrorIs(t, statErr, fs.ErrNotExist)
}

func TestDownload_UnwritablePath(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.AddObject("bkt", "hello.txt", []byte("hi"))
	m := newTestManager(t, store)

	err := m.Download(context.Background(), "bkt", "hello.txt", filepath.Join(t.TempDir(), "missing-dir", "out.txt"))
	require.Error(t, err)
	assert.Equal(t, provider.KindIO, provider.Classify(err))
	assert.Zero(t, store.Calls("GetObject"))
}

func TestDownload_EmptyKey(t *testing.T) {
	m := newTestManager(t, testutil.NewMemoryStore())

	err := m.Download(context.Background(), "bkt", "", filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrInvalidConfig)
}

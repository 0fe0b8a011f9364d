package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/3leaps/gobucket/pkg/object"
	"github.com/3leaps/gobucket/pkg/output"
)

var putCmd = &cobra.Command{
	Use:   "put <file> <s3://bucket[/key]>",
	Short: "Upload a local file",
	Long: `Upload a local file to a bucket.

Without a key, or with a key ending in /, the file's base name is used.
Files larger than transfer.multipart_threshold are uploaded in parts.

Examples:
  gobucket put report.csv s3://reports
  gobucket put report.csv s3://reports/2024/
  gobucket put report.csv s3://reports/2024/q1.csv --content-type text/csv`,
	Args: cobra.ExactArgs(2),
	RunE: runWithSession(runPut),
}

var getCmd = &cobra.Command{
	Use:   "get <s3://bucket/key> <file>",
	Short: "Download an object to a local file",
	Long: `Download an object to a local file. An existing file is overwritten.
If the download fails an existing file is left as it was.

Examples:
  gobucket get s3://reports/2024/q1.csv q1.csv`,
	Args: cobra.ExactArgs(2),
	RunE: runWithSession(runGet),
}

var (
	putContentType string
	noProgress     bool
)

func init() {
	rootCmd.AddCommand(putCmd, getCmd)

	putCmd.Flags().StringVar(&putContentType, "content-type", "", "Content type (default: detected from the file)")
	for _, c := range []*cobra.Command{putCmd, getCmd} {
		c.Flags().BoolVar(&noProgress, "no-progress", false, "Do not print a progress line")
	}
}

func runPut(ctx context.Context, s *session, args []string) error {
	localPath := args[0]
	uri, err := ParseURI(args[1])
	if err != nil {
		return usageError("Invalid destination", err)
	}
	if uri.IsPattern() {
		return usageError("Invalid destination", fmt.Errorf("%w: destination must not be a pattern", ErrInvalidURI))
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return s.fail(ctx, "Cannot read source file", uri.Bucket, "", err)
	}

	key := uri.Key
	if key == "" || strings.HasSuffix(key, "/") {
		key += filepath.Base(localPath)
	}

	opts := []object.TransferOption{}
	if putContentType != "" {
		opts = append(opts, object.WithContentType(putContentType))
	}
	progress := newProgressLine(info.Size())
	if progress != nil {
		opts = append(opts, object.WithProgress(progress.update))
	}

	start := time.Now()
	err = s.objects.Upload(ctx, uri.Bucket, localPath, key, opts...)
	progress.finish()
	if err != nil {
		return s.fail(ctx, "Upload failed", uri.Bucket, key, err)
	}

	return s.out.WriteTransfer(ctx, &output.TransferRecord{
		Direction:   output.DirectionUpload,
		Bucket:      uri.Bucket,
		Key:         key,
		Path:        localPath,
		Bytes:       info.Size(),
		ContentType: putContentType,
		Duration:    time.Since(start),
	})
}

func runGet(ctx context.Context, s *session, args []string) error {
	uri, err := ParseURI(args[0])
	if err != nil {
		return usageError("Invalid source", err)
	}
	if uri.IsPattern() || uri.IsPrefix() {
		return usageError("Invalid source", fmt.Errorf("%w: source must name a single object", ErrInvalidURI))
	}

	localPath := args[1]
	if info, err := os.Stat(localPath); err == nil && info.IsDir() {
		localPath = filepath.Join(localPath, filepath.Base(uri.Key))
	}

	var opts []object.TransferOption
	progress := newProgressLine(0)
	if progress != nil {
		opts = append(opts, object.WithProgress(progress.update))
	}

	start := time.Now()
	err = s.objects.Download(ctx, uri.Bucket, uri.Key, localPath, opts...)
	progress.finish()
	if err != nil {
		return s.fail(ctx, "Download failed", uri.Bucket, uri.Key, err)
	}

	var size int64
	if info, err := os.Stat(localPath); err == nil {
		size = info.Size()
	}
	return s.out.WriteTransfer(ctx, &output.TransferRecord{
		Direction: output.DirectionDownload,
		Bucket:    uri.Bucket,
		Key:       uri.Key,
		Path:      localPath,
		Bytes:     size,
		Duration:  time.Since(start),
	})
}

// progressInterval limits how often the progress line is redrawn.
const progressInterval = 200 * time.Millisecond

// progressLine redraws a single stderr line with the transferred total.
type progressLine struct {
	w     io.Writer
	total int64

	mu    sync.Mutex
	last  time.Time
	shown bool
}

// newProgressLine returns nil unless output is text and progress is wanted.
func newProgressLine(total int64) *progressLine {
	if noProgress || outputFormat != formatText {
		return nil
	}
	return &progressLine{w: stderr, total: total}
}

func (p *progressLine) update(transferred int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.shown && now.Sub(p.last) < progressInterval && transferred != p.total {
		return
	}
	p.last = now
	p.shown = true

	if p.total > 0 {
		_, _ = fmt.Fprintf(p.w, "\r%s / %s (%d%%)", humanize.IBytes(uint64(transferred)), humanize.IBytes(uint64(p.total)), transferred*100/p.total)
		return
	}
	_, _ = fmt.Fprintf(p.w, "\r%s", humanize.IBytes(uint64(transferred)))
}

// finish clears the progress line. Safe on a nil receiver.
func (p *progressLine) finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shown {
		_, _ = fmt.Fprint(p.w, "\r\033[K")
	}
}

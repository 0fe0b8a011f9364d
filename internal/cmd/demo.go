package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gobucket/internal/observability"
	"github.com/3leaps/gobucket/pkg/output"
	"github.com/3leaps/gobucket/pkg/provider"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the basic operations walkthrough against the store",
	Long: `Run every basic operation once against a temporary bucket:
create it, upload a file, list it, download and compare the file, drain
the bucket, confirm it is empty and delete it.

The bucket is named gobucket-demo-<timestamp>-<id> and is removed even
when a step fails.`,
	Args: cobra.NoArgs,
	RunE: runWithSession(runDemo),
}

const demoContent = "hi"

func init() {
	rootCmd.AddCommand(demoCmd)
}

// demoBucketName returns a bucket name unique enough for a shared store.
func demoBucketName(now time.Time, id uuid.UUID) string {
	return fmt.Sprintf("gobucket-demo-%s-%s", now.UTC().Format("20060102-150405"), strings.SplitN(id.String(), "-", 2)[0])
}

func runDemo(ctx context.Context, s *session, _ []string) (err error) {
	name := demoBucketName(time.Now(), uuid.New())
	log := observability.CLILogger.With(zap.String("bucket", name))

	dir, err := os.MkdirTemp("", "gobucket-demo-")
	if err != nil {
		return s.fail(ctx, "Cannot create work directory", name, "", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	step := func(n int, what string) {
		log.Info(fmt.Sprintf("[%d/7] %s", n, what))
	}

	step(1, "Creating bucket")
	if err := s.buckets.Create(ctx, name); err != nil {
		return s.fail(ctx, "Failed to create bucket", name, "", err)
	}
	if err := s.out.WriteBucket(ctx, &output.BucketRecord{Name: name, Action: output.ActionCreated}); err != nil {
		return err
	}
	created := true
	defer func() {
		if !created {
			return
		}
		// Cleanup must run even when the command context was canceled.
		cleanupCtx := context.WithoutCancel(ctx)
		if cerr := s.buckets.Delete(cleanupCtx, name, true); cerr != nil {
			log.Error("Failed to remove demo bucket", zap.Error(cerr))
			if err == nil {
				err = s.fail(cleanupCtx, "Failed to remove demo bucket", name, "", cerr)
			}
		}
	}()

	src := filepath.Join(dir, "hello.txt")
	if err := os.WriteFile(src, []byte(demoContent), 0o600); err != nil {
		return s.fail(ctx, "Cannot write demo file", name, "", err)
	}

	step(2, "Uploading hello.txt")
	start := time.Now()
	if err := s.objects.Upload(ctx, name, src, ""); err != nil {
		return s.fail(ctx, "Upload failed", name, "hello.txt", err)
	}
	if err := s.out.WriteTransfer(ctx, &output.TransferRecord{
		Direction: output.DirectionUpload, Bucket: name, Key: "hello.txt", Path: src,
		Bytes: int64(len(demoContent)), Duration: time.Since(start),
	}); err != nil {
		return err
	}

	step(3, "Listing objects")
	keys, err := s.objects.Keys(ctx, name, "")
	if err != nil {
		return s.fail(ctx, "Failed to list objects", name, "", err)
	}
	if len(keys) != 1 || keys[0] != "hello.txt" {
		return s.fail(ctx, "Unexpected listing", name, "",
			fmt.Errorf("listed %v, want [hello.txt]", keys))
	}

	step(4, "Downloading hello.txt")
	dst := filepath.Join(dir, "downloaded.txt")
	start = time.Now()
	if err := s.objects.Download(ctx, name, "hello.txt", dst); err != nil {
		return s.fail(ctx, "Download failed", name, "hello.txt", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		return s.fail(ctx, "Cannot read downloaded file", name, "hello.txt", err)
	}
	if !bytes.Equal(got, []byte(demoContent)) {
		return s.fail(ctx, "Downloaded content differs", name, "hello.txt",
			fmt.Errorf("got %q, want %q", got, demoContent))
	}
	if err := s.out.WriteTransfer(ctx, &output.TransferRecord{
		Direction: output.DirectionDownload, Bucket: name, Key: "hello.txt", Path: dst,
		Bytes: int64(len(got)), Duration: time.Since(start),
	}); err != nil {
		return err
	}

	step(5, "Draining bucket")
	opts := s.cfg.DrainOptions()
	start = time.Now()
	result, err := s.objects.DeleteAll(ctx, name, opts)
	if result != nil {
		if werr := s.out.WriteDrain(ctx, drainRecord(name, opts, result, time.Since(start))); werr != nil {
			return werr
		}
	}
	if err != nil {
		return s.fail(ctx, "Drain failed", name, "", err)
	}

	step(6, "Confirming bucket is empty")
	page, ok, err := s.objects.List(name, provider.ListOptions{}).Next(ctx)
	if err != nil {
		return s.fail(ctx, "Failed to list objects", name, "", err)
	}
	if ok {
		return s.fail(ctx, "Bucket not empty after drain", name, "",
			fmt.Errorf("%d object(s) left", page.Len()))
	}

	step(7, "Deleting bucket")
	if err := s.buckets.Delete(ctx, name, false); err != nil {
		return s.fail(ctx, "Failed to delete bucket", name, "", err)
	}
	created = false
	if err := s.out.WriteBucket(ctx, &output.BucketRecord{Name: name, Action: output.ActionDeleted}); err != nil {
		return err
	}

	log.Info("Demo complete")
	return nil
}

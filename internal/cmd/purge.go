package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/gobucket/pkg/object"
	"github.com/3leaps/gobucket/pkg/output"
)

var purgeCmd = &cobra.Command{
	Use:   "purge <s3://bucket[/prefix]>",
	Short: "Delete every object in a bucket or under a prefix",
	Long: `Delete every object in a bucket, or every object under a prefix.

Objects are deleted page by page in batches of up to 1000 keys per request.
By default the drain stops at the first batch that reports a failure; with
--best-effort it carries on and reports every key it could not delete.
Nothing is rolled back. The bucket itself is kept.

Examples:
  gobucket purge s3://scratch
  gobucket purge s3://scratch/tmp/ --best-effort
  gobucket purge s3://scratch --batch-size 100 --rate-limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runWithSession(runPurge),
}

var (
	purgeBestEffort bool
	purgeBatchSize  int
	purgeRateLimit  float64
)

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().BoolVar(&purgeBestEffort, "best-effort", false, "Keep deleting after a failed batch")
	purgeCmd.Flags().IntVar(&purgeBatchSize, "batch-size", 0, "Keys per delete request, 1 to 1000 (default: drain.batch_size)")
	purgeCmd.Flags().Float64Var(&purgeRateLimit, "rate-limit", -1, "Delete requests per second, 0 = unlimited (default: drain.rate_limit)")
}

func runPurge(ctx context.Context, s *session, args []string) error {
	uri, err := ParseURI(args[0])
	if err != nil {
		return usageError("Invalid URI", err)
	}
	if uri.IsPattern() {
		return usageError("Invalid URI", errors.Join(ErrInvalidURI, errors.New("purge takes a prefix, not a pattern")))
	}

	opts := s.cfg.DrainOptions()
	opts.Prefix = uri.Key
	if purgeBestEffort {
		opts.Policy = object.BestEffort
	}
	if purgeBatchSize != 0 {
		opts.BatchSize = purgeBatchSize
	}
	if purgeRateLimit >= 0 {
		opts.RateLimit = purgeRateLimit
	}

	start := time.Now()
	result, err := s.objects.DeleteAll(ctx, uri.Bucket, opts)
	if result != nil && (err == nil || result.Listed > 0) {
		if werr := s.out.WriteDrain(context.WithoutCancel(ctx), drainRecord(uri.Bucket, opts, result, time.Since(start))); werr != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", werr)
		}
	}
	if err != nil {
		return s.fail(ctx, "Purge incomplete", uri.Bucket, uri.Key, err)
	}
	return nil
}

func drainRecord(bucketName string, opts object.DrainOptions, result *object.DrainResult, elapsed time.Duration) *output.DrainRecord {
	rec := &output.DrainRecord{
		Bucket:   bucketName,
		Prefix:   opts.Prefix,
		Policy:   opts.Policy.String(),
		Listed:   result.Listed,
		Deleted:  result.Deleted,
		Requests: result.Requests,
		Duration: elapsed,
	}
	for _, f := range result.Failed {
		rec.Failed = append(rec.Failed, output.FailedKey{Key: f.Key, Code: f.Code, Message: f.Message})
	}
	return rec
}

package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/gobucket/pkg/output"
)

var bucketCmd = &cobra.Command{
	Use:   "bucket",
	Short: "Create, delete and list buckets",
}

var bucketCreateCmd = &cobra.Command{
	Use:   "create <bucket>",
	Short: "Create a bucket",
	Long: `Create a bucket in the configured region.

Examples:
  gobucket bucket create reports
  gobucket bucket create s3://reports --region eu-west-1`,
	Args: cobra.ExactArgs(1),
	RunE: runWithSession(runBucketCreate),
}

var bucketDeleteCmd = &cobra.Command{
	Use:   "delete <bucket>",
	Short: "Delete a bucket",
	Long: `Delete a bucket. The bucket must be empty unless --force is given.

With --force every object is deleted first using the configured drain
policy. If any object cannot be deleted the bucket is left in place.

Examples:
  gobucket bucket delete reports
  gobucket bucket delete reports --force`,
	Args: cobra.ExactArgs(1),
	RunE: runWithSession(runBucketDelete),
}

var bucketListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List buckets",
	Args:    cobra.NoArgs,
	RunE:    runWithSession(runBucketList),
}

var bucketExistsCmd = &cobra.Command{
	Use:   "exists <bucket>",
	Short: "Check whether a bucket exists",
	Long: `Check whether a bucket exists and is reachable with the current
credentials. Exits non-zero when it does not.`,
	Args: cobra.ExactArgs(1),
	RunE: runWithSession(runBucketExists),
}

var bucketDeleteForce bool

func init() {
	rootCmd.AddCommand(bucketCmd)
	bucketCmd.AddCommand(bucketCreateCmd, bucketDeleteCmd, bucketListCmd, bucketExistsCmd)

	bucketDeleteCmd.Flags().BoolVar(&bucketDeleteForce, "force", false, "Delete every object before removing the bucket")
}

func runBucketCreate(ctx context.Context, s *session, args []string) error {
	name, err := parseBucketArg(args[0])
	if err != nil {
		return usageError("Invalid bucket", err)
	}
	if err := s.buckets.Create(ctx, name); err != nil {
		return s.fail(ctx, "Failed to create bucket", name, "", err)
	}
	return s.out.WriteBucket(ctx, &output.BucketRecord{Name: name, Action: output.ActionCreated})
}

func runBucketDelete(ctx context.Context, s *session, args []string) error {
	name, err := parseBucketArg(args[0])
	if err != nil {
		return usageError("Invalid bucket", err)
	}
	if err := s.buckets.Delete(ctx, name, bucketDeleteForce); err != nil {
		return s.fail(ctx, "Failed to delete bucket", name, "", err)
	}
	return s.out.WriteBucket(ctx, &output.BucketRecord{Name: name, Action: output.ActionDeleted})
}

func runBucketList(ctx context.Context, s *session, _ []string) error {
	buckets, err := s.buckets.List(ctx)
	if err != nil {
		return s.fail(ctx, "Failed to list buckets", "", "", err)
	}
	for _, b := range buckets {
		rec := &output.BucketRecord{Name: b.Name, Action: output.ActionListed}
		if !b.Created.IsZero() {
			created := b.Created
			rec.Created = &created
		}
		if err := s.out.WriteBucket(ctx, rec); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}
	return nil
}

func runBucketExists(ctx context.Context, s *session, args []string) error {
	name, err := parseBucketArg(args[0])
	if err != nil {
		return usageError("Invalid bucket", err)
	}
	exists, err := s.buckets.Exists(ctx, name)
	if err != nil {
		return s.fail(ctx, "Failed to check bucket", name, "", err)
	}

	action := output.ActionExists
	if !exists {
		action = output.ActionMissing
	}
	if err := s.out.WriteBucket(ctx, &output.BucketRecord{Name: name, Action: action}); err != nil {
		return err
	}
	if !exists {
		return exitError(exitFailure, "Bucket not found", fmt.Errorf("bucket %s does not exist", name))
	}
	return nil
}

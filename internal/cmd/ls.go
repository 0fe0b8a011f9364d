package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gobucket/internal/observability"
	"github.com/3leaps/gobucket/pkg/output"
	"github.com/3leaps/gobucket/pkg/provider"
)

var lsCmd = &cobra.Command{
	Use:   "ls <s3://bucket[/prefix]>",
	Short: "List objects page by page",
	Long: `List the objects in a bucket, one store round-trip per page.

A glob in the key part (doublestar syntax) is matched client side against
full keys; the literal part before it narrows the listing prefix.

--pages stops after that many pages and prints the token to pass to
--start-token to continue where the listing stopped.

Examples:
  gobucket ls s3://reports
  gobucket ls s3://reports/2024/
  gobucket ls 's3://reports/**/*.csv'
  gobucket ls s3://reports --page-size 100 --pages 1
  gobucket ls s3://reports --start-token <token>`,
	Args: cobra.ExactArgs(1),
	RunE: runWithSession(runList),
}

var (
	lsPageSize   int
	lsStartToken string
	lsMaxPages   int
)

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().IntVar(&lsPageSize, "page-size", 0, "Objects per round-trip, at most 1000 (default: list.page_size)")
	lsCmd.Flags().StringVar(&lsStartToken, "start-token", "", "Resume after the page that returned this token")
	lsCmd.Flags().IntVar(&lsMaxPages, "pages", 0, "Stop after this many pages (0 = all)")
}

func runList(ctx context.Context, s *session, args []string) error {
	uri, err := ParseURI(args[0])
	if err != nil {
		return usageError("Invalid URI", err)
	}
	if lsPageSize < 0 || lsMaxPages < 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid flags",
			fmt.Errorf("%w: --page-size and --pages must not be negative", provider.ErrInvalidConfig))
	}

	pageSize := lsPageSize
	if pageSize == 0 {
		pageSize = s.cfg.List.PageSize
	}

	pager := s.objects.List(uri.Bucket, provider.ListOptions{
		Prefix:     uri.Key,
		StartToken: lsStartToken,
		PageSize:   pageSize,
		Match:      uri.Pattern,
	})

	index := 0
	for page, err := range pager.All(ctx) {
		if err != nil {
			observability.CLILogger.Debug("Listing stopped",
				zap.Int("pages", index),
				zap.String("resume_token", pager.ContinuationToken()))
			return s.fail(ctx, "Failed to list objects", uri.Bucket, uri.Key, err)
		}
		index++

		for _, obj := range page.Objects {
			if err := s.out.WriteObject(ctx, &output.ObjectRecord{
				Bucket:       uri.Bucket,
				Key:          obj.Key,
				Size:         obj.Size,
				ETag:         obj.ETag,
				LastModified: obj.LastModified,
				StorageClass: obj.StorageClass,
			}); err != nil {
				return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
			}
		}

		last := lsMaxPages > 0 && index >= lsMaxPages
		if last || outputFormat == formatJSONL {
			if err := s.out.WritePage(ctx, &output.PageRecord{
				Index:     index,
				Objects:   page.Len(),
				NextToken: page.NextToken,
			}); err != nil {
				return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
			}
		}
		if last {
			break
		}
	}
	return nil
}

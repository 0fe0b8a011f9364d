// Package cmd implements the gobucket command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/gobucket/internal/config"
	"github.com/3leaps/gobucket/internal/metrics"
	"github.com/3leaps/gobucket/internal/observability"
	"github.com/3leaps/gobucket/pkg/bucket"
	"github.com/3leaps/gobucket/pkg/object"
	"github.com/3leaps/gobucket/pkg/output"
	"github.com/3leaps/gobucket/pkg/provider"
	s3provider "github.com/3leaps/gobucket/pkg/provider/s3"
)

// Output formats.
const (
	formatText  = "text"
	formatJSONL = "jsonl"
)

// versionInfo holds build metadata injected by main.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// StoreAPI is the client surface the commands need. *s3.Client satisfies it.
type StoreAPI interface {
	bucket.API
	object.API
}

// connect opens the store. Tests replace it with an in-memory fake.
var connect = func(ctx context.Context, cfg s3provider.Config) (StoreAPI, error) {
	client, err := s3provider.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client.API(), nil
}

var (
	cfgFile      string
	outputFormat string

	// cliViper carries the persistent flags into config.LoadFrom.
	cliViper = viper.New()

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var rootCmd = &cobra.Command{
	Use:   "gobucket",
	Short: "Bucket and object operations for S3-compatible stores",
	Long: `gobucket creates and removes buckets, moves files in and out of them,
lists their contents page by page and drains them.

Credentials are read from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
Every other setting comes from flags, GOBUCKET_* environment variables or
a gobucket.yaml config file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: ./gobucket.yaml, then the user config dir)")
	flags.String("endpoint", "", "Store endpoint URL")
	flags.String("ca-bundle", "", "PEM bundle used instead of the system trust store")
	flags.String("region", "", "Signing region")
	flags.Bool("path-style", false, "Use path-style bucket addressing")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&outputFormat, "format", formatText, "Output format (text, jsonl)")

	bindFlags(cliViper)
}

// flagKeys maps config keys to the persistent flags that override them.
var flagKeys = map[string]string{
	"endpoint":      "endpoint",
	"ca_bundle":     "ca-bundle",
	"region":        "region",
	"path_style":    "path-style",
	"logging.level": "log-level",
}

func bindFlags(v *viper.Viper) {
	for key, flag := range flagKeys {
		if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// session is the per-invocation state shared by store commands.
type session struct {
	cfg     *config.Config
	jobID   string
	out     output.Writer
	metrics *metrics.Collector
	buckets *bucket.Manager
	objects *object.Manager
}

// newSession loads the configuration, initializes logging and connects to
// the store.
func newSession(ctx context.Context) (*session, error) {
	if outputFormat != formatText && outputFormat != formatJSONL {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid output format",
			fmt.Errorf("%w: --format must be text or jsonl, got %q", provider.ErrInvalidConfig, outputFormat))
	}

	cfg, err := config.LoadFrom(ctx, cliViper, cfgFile)
	if err != nil {
		return nil, exitError(exitCodeFor(err), "Failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid config", err)
	}

	if err := observability.InitCLILogger("gobucket", cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid logging config", err)
	}

	api, err := connect(ctx, cfg.S3())
	if err != nil {
		observability.CLILogger.Error("Failed to create client", zap.Error(err))
		return nil, exitError(exitCodeFor(err), "Failed to connect to store", err)
	}

	s := &session{
		cfg:     cfg,
		jobID:   uuid.New().String(),
		metrics: metrics.NewCollector(),
	}
	if outputFormat == formatJSONL {
		s.out = output.NewJSONLWriter(stdout, s.jobID, provider.ProviderS3.String())
	} else {
		s.out = output.NewTextWriter(stdout, stderr)
	}

	log := observability.CLILogger.With(zap.String("job_id", s.jobID))
	s.objects, err = object.NewManager(api,
		object.WithLogger(log),
		object.WithRecorder(s.metrics),
		object.WithTransferConfig(cfg.TransferConfig()),
	)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid transfer config", err)
	}
	s.buckets, err = bucket.NewManager(api,
		bucket.WithLogger(log),
		bucket.WithRecorder(s.metrics),
		bucket.WithDrainer(s.objects),
		bucket.WithDrainOptions(cfg.DrainOptions()),
		bucket.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid bucket config", err)
	}
	return s, nil
}

// fail reports err as an error record and returns the exit error for it.
func (s *session) fail(ctx context.Context, message, bucketName, key string, err error) error {
	observability.CLILogger.Debug(message, zap.String("bucket", bucketName), zap.String("key", key), zap.Error(err))
	_ = s.out.WriteError(context.WithoutCancel(ctx), output.NewErrorRecord(err, bucketName, key))
	return exitError(exitCodeFor(err), message, err)
}

// close flushes output and pushes metrics when a pushgateway is configured.
func (s *session) close(ctx context.Context) {
	_ = s.out.Close()

	url := s.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	if err := s.metrics.Push(context.WithoutCancel(ctx), url, s.cfg.Metrics.Job); err != nil {
		observability.CLILogger.Warn("Failed to push metrics", zap.String("url", url), zap.Error(err))
	}
}

// runWithSession wraps a command body with session setup and teardown.
func runWithSession(fn func(ctx context.Context, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := newSession(ctx)
		if err != nil {
			return err
		}
		defer s.close(ctx)
		return fn(ctx, s, args)
	}
}

// parseBucketArg accepts a bare bucket name or an s3://bucket URI.
func parseBucketArg(arg string) (string, error) {
	if !strings.Contains(arg, "://") {
		if arg == "" || strings.Contains(arg, "/") {
			return "", fmt.Errorf("%w: %q is not a bucket name", ErrInvalidURI, arg)
		}
		return arg, nil
	}
	uri, err := ParseURI(arg)
	if err != nil {
		return "", err
	}
	if uri.Key != "" || uri.IsPattern() {
		return "", fmt.Errorf("%w: %s names an object, expected a bucket", ErrInvalidURI, arg)
	}
	return uri.Bucket, nil
}

// usageError marks argument errors so they map to the usage exit code.
func usageError(message string, err error) error {
	if errors.Is(err, ErrInvalidURI) || errors.Is(err, ErrUnsupportedProvider) || errors.Is(err, ErrMissingBucket) {
		return exitError(foundry.ExitInvalidArgument, message, err)
	}
	return exitError(exitCodeFor(err), message, err)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gobucket/internal/config"
	"github.com/3leaps/gobucket/internal/observability"
	"github.com/3leaps/gobucket/pkg/bucket"
	s3provider "github.com/3leaps/gobucket/pkg/provider/s3"
)

var doctorConnect bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment and configuration and
suggest fixes for common issues.

Examples:
  gobucket doctor            # Environment and config checks
  gobucket doctor --connect  # Also list buckets against the endpoint`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorConnect, "connect", false, "Also verify the endpoint accepts the credentials")
}

// errChecksFailed is returned when at least one doctor check fails.
var errChecksFailed = errors.New("diagnostic checks failed")

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := observability.InitCLILogger("gobucket", "info", observability.FormatConsole); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot initialize logger", err)
	}
	log := observability.CLILogger

	log.Info("=== gobucket doctor ===")
	log.Info("")
	log.Info("Running diagnostic checks...")
	log.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 5
	if doctorConnect {
		totalChecks = 6
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	log.Info(fmt.Sprintf("[%d/%d] Checking Go runtime... ✅ %s %s/%s", checkNum, totalChecks, goVersion, runtime.GOOS, runtime.GOARCH),
		zap.String("go_version", goVersion))
	checkNum++

	// Check 2: Fulmen libraries
	version := crucible.GetVersion()
	if version.Gofulmen != "" {
		log.Info(fmt.Sprintf("[%d/%d] Checking gofulmen... ✅ v%s (crucible v%s)", checkNum, totalChecks, version.Gofulmen, version.Crucible),
			zap.String("gofulmen_version", version.Gofulmen),
			zap.String("crucible_version", version.Crucible))
	} else {
		log.Warn(fmt.Sprintf("[%d/%d] Checking gofulmen... ⚠️  version unknown", checkNum, totalChecks))
	}
	checkNum++

	// Check 3: Config
	cfg, ok := checkConfig(ctx, checkNum, totalChecks)
	allChecks = allChecks && ok
	checkNum++

	// Check 4: Credentials
	creds, credErr := s3provider.CredentialsFromEnv(nil)
	if credErr != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking credentials... ❌ %v", checkNum, totalChecks, credErr))
		printCredentialsHelp()
		allChecks = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking credentials... ✅ Found credentials", checkNum, totalChecks),
			zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
			zap.Bool("session_token", creds.SessionToken != ""))
	}
	checkNum++

	// Check 5: CA bundle
	switch {
	case cfg == nil:
		log.Warn(fmt.Sprintf("[%d/%d] Checking CA bundle... ⚠️  skipped, config did not load", checkNum, totalChecks))
	case cfg.CABundle == "":
		log.Info(fmt.Sprintf("[%d/%d] Checking CA bundle... ✅ system trust store", checkNum, totalChecks))
	default:
		if _, err := os.Stat(cfg.CABundle); err != nil {
			log.Error(fmt.Sprintf("[%d/%d] Checking CA bundle... ❌ %s", checkNum, totalChecks, cfg.CABundle), zap.Error(err))
			allChecks = false
		} else {
			log.Info(fmt.Sprintf("[%d/%d] Checking CA bundle... ✅ %s", checkNum, totalChecks, cfg.CABundle))
		}
	}
	checkNum++

	// Check 6: Endpoint
	if doctorConnect {
		if cfg == nil || credErr != nil {
			log.Warn(fmt.Sprintf("[%d/%d] Checking endpoint... ⚠️  skipped, config or credentials missing", checkNum, totalChecks))
			allChecks = false
		} else if !checkEndpoint(ctx, cfg, checkNum, totalChecks) {
			allChecks = false
		}
	}

	log.Info("")
	if !allChecks {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
		log.Info("")
		log.Info("=== End Diagnostics ===")
		return exitError(foundry.ExitInvalidArgument, "Doctor", errChecksFailed)
	}
	log.Info("✅ All checks passed!")
	log.Info("")
	log.Info("=== End Diagnostics ===")
	return nil
}

func checkConfig(ctx context.Context, checkNum, totalChecks int) (*config.Config, bool) {
	log := observability.CLILogger

	cfg, err := config.LoadFrom(ctx, cliViper, cfgFile)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking config... ❌ Cannot load config", checkNum, totalChecks), zap.Error(err))
		return nil, false
	}
	if err := cfg.Validate(); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking config... ❌ Invalid config", checkNum, totalChecks), zap.Error(err))
		return cfg, false
	}

	source := config.UsedFile(cliViper)
	if source == "" {
		source = "defaults and environment"
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking config... ✅ %s", checkNum, totalChecks, source),
		zap.String("endpoint", cfg.Endpoint),
		zap.String("region", cfg.Region))
	return cfg, true
}

func checkEndpoint(ctx context.Context, cfg *config.Config, checkNum, totalChecks int) bool {
	log := observability.CLILogger

	api, err := connect(ctx, cfg.S3())
	if err == nil {
		var buckets *bucket.Manager
		if buckets, err = bucket.NewManager(api, bucket.WithLogger(log)); err == nil {
			_, err = buckets.List(ctx)
		}
	}
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking endpoint... ❌ %s", checkNum, totalChecks, cfg.Endpoint), zap.Error(err))
		return false
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking endpoint... ✅ %s", checkNum, totalChecks, cfg.Endpoint))
	return true
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printCredentialsHelp prints help for configuring credentials.
func printCredentialsHelp() {
	log := observability.CLILogger
	log.Info("")
	log.Info("To configure credentials:")
	log.Info("  export " + s3provider.EnvAccessKeyID + "=<access key>")
	log.Info("  export " + s3provider.EnvSecretAccessKey + "=<secret key>")
	log.Info("  export " + s3provider.EnvSessionToken + "=<token>   # optional")
	log.Info("")
	log.Info("Shared config files, profiles and instance roles are not used.")
	log.Info("Set the store with --endpoint or " + config.EnvPrefix + "_ENDPOINT.")
	log.Info("")
}

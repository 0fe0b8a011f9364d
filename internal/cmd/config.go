package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/gobucket/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration gobucket would use, after merging defaults,
the config file, GOBUCKET_* environment variables and flags.

Credentials are never part of the configuration and are not printed.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFrom(cmd.Context(), cliViper, cfgFile)
	if err != nil {
		return exitError(exitCodeFor(err), "Failed to load config", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to render config", err)
	}
	if file := config.UsedFile(cliViper); file != "" {
		if _, err := fmt.Fprintf(stdout, "# loaded from %s\n", file); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}
	if _, err := stdout.Write(data); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	if err := cfg.Validate(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid config", err)
	}
	return nil
}

package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittobtt/internal/cli/output"
	"github.com/marmos91/dittobtt/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective configuration: file, environment and defaults merged.

Examples:
  dittobtt config show
  dittobtt config show --output json`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		format = output.FormatYAML
	}
	return output.Print(cmd.OutOrStdout(), format, cfg)
}

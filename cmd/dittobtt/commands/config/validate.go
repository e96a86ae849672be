package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobtt/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the dittobtt configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  dittobtt config validate
  dittobtt config validate --config /etc/dittobtt/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)

	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}

	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Device.UUID == "" {
		warnings = append(warnings, "device.uuid not set - only existing devices can be attached (by probing)")
	}
	if cfg.Store.Type == config.StoreTypeMemory {
		warnings = append(warnings, "memory store - contents are lost when the process exits")
	}
	if cfg.Store.Type != config.StoreTypeMemory && !cfg.Store.SyncWrites {
		warnings = append(warnings, "store.sync_writes is off - acknowledged writes may not survive power loss")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", path)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Store:       %s %s\n", cfg.Store.Type, cfg.Store.Path)
	_, _ = fmt.Fprintf(out, "  Sector size: %d\n", cfg.Device.LBASize)
	_, _ = fmt.Fprintf(out, "  API port:    %d\n", cfg.API.Port)
	_, _ = fmt.Fprintf(out, "  Log level:   %s\n", cfg.Logging.Level)
	return nil
}

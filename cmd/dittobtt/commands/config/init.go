package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobtt/internal/bytesize"
	"github.com/marmos91/dittobtt/pkg/config"
)

var (
	initForce     bool
	initStoreType string
	initStorePath string
	initStoreSize string
	initLBASize   uint32
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file",
	Long: `Write a configuration file with defaults and a newly generated device UUID.

By default the file is created at $XDG_CONFIG_HOME/dittobtt/config.yaml.
Use --config to specify a custom path.

Examples:
  # Memory-backed device for experiments
  dittobtt config init

  # File-backed device
  dittobtt config init --store-type file --store-path /var/lib/dittobtt/pmem.img --store-size 1Gi

  # Overwrite an existing config
  dittobtt config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	initCmd.Flags().StringVar(&initStoreType, "store-type", config.StoreTypeMemory, "Store type (memory|file|mmap|badger)")
	initCmd.Flags().StringVar(&initStorePath, "store-path", "", "Store path (file, device node or badger directory)")
	initCmd.Flags().StringVar(&initStoreSize, "store-size", "", "Store size, e.g. 64Mi or 1Gi")
	initCmd.Flags().Uint32Var(&initLBASize, "lba-size", config.DefaultLBASize, "Sector size in bytes")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.GetDefaultConfig()
	cfg.Device.UUID = config.NewDeviceUUID()
	cfg.Device.LBASize = initLBASize
	cfg.Store.Type = strings.ToLower(initStoreType)
	cfg.Store.Path = initStorePath
	if initStoreSize != "" {
		size, err := bytesize.ParseByteSize(initStoreSize)
		if err != nil {
			return fmt.Errorf("invalid --store-size: %w", err)
		}
		cfg.Store.Size = size
	}

	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.SaveConfig(cfg, path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	_, _ = fmt.Fprintf(out, "  Device UUID: %s\n", cfg.Device.UUID)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Review the store section")
	_, _ = fmt.Fprintln(out, "  2. Format the device with: dittobtt format")
	_, _ = fmt.Fprintln(out, "  3. Serve it with: dittobtt serve")
	return nil
}

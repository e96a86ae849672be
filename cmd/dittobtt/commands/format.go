package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobtt/internal/bytesize"
	"github.com/marmos91/dittobtt/internal/cli/prompt"
	"github.com/marmos91/dittobtt/pkg/btt"
)

var (
	formatForce bool
	formatUUID  string
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Write BTT metadata to the configured store",
	Long: `Lay out arenas, maps and logs on the configured store.

Formatting is otherwise done lazily by the first write. An already
formatted device is left untouched. Anything stored in the extent that is
not a BTT with the configured UUID is overwritten.

Examples:
  # Format with confirmation
  dittobtt format

  # Format without prompting
  dittobtt format --force

  # Format a store whose config has no UUID yet
  dittobtt format --uuid 2f1c7f9e-4b8a-4b55-9a43-8f1b3c3f0e6d`,
	RunE: runFormat,
}

func init() {
	formatCmd.Flags().BoolVarP(&formatForce, "force", "f", false, "Skip confirmation prompt")
	formatCmd.Flags().StringVar(&formatUUID, "uuid", "", "Device UUID (overrides device.uuid)")
}

func runFormat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if formatUUID != "" {
		cfg.Device.UUID = formatUUID
	}
	if cfg.Device.ReadOnly {
		return btt.ErrReadOnly
	}

	dev, err := openDevice(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = dev.Close() }()

	out := cmd.OutOrStdout()
	if dev.State() == btt.StateReady {
		_, _ = fmt.Fprintf(out, "Device %s is already formatted\n", dev.UUID())
		return nil
	}

	ok, err := prompt.ConfirmWithForce(
		fmt.Sprintf("Format %s store %q as device %s", cfg.Store.Type, cfg.Store.Path, shortUUID(dev.UUID())),
		formatForce)
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(out, "Aborted.")
		return nil
	}

	if err := dev.Format(cmd.Context()); err != nil {
		return fmt.Errorf("format failed: %w", err)
	}

	info := dev.Info()
	_, _ = fmt.Fprintf(out, "Formatted device %s\n", info.UUID)
	_, _ = fmt.Fprintf(out, "  Arenas:   %d\n", len(info.Arenas))
	_, _ = fmt.Fprintf(out, "  Sectors:  %d x %d bytes\n", info.NumLBA, info.LBASize)
	_, _ = fmt.Fprintf(out, "  Capacity: %s\n", bytesize.ByteSize(info.NumLBA*uint64(info.LBASize)))
	return nil
}

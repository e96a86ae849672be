package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobtt/internal/bytesize"
	"github.com/marmos91/dittobtt/internal/cli/output"
	"github.com/marmos91/dittobtt/pkg/btt"
)

var infoOutput string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show device geometry",
	Long: `Attach the configured device read-only and print its geometry.

When device.uuid is not configured the store is probed for an info block.

Examples:
  dittobtt info
  dittobtt info --output json`,
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().StringVarP(&infoOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runInfo(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(infoOutput)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dev, err := openDevice(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = dev.Close() }()

	info := dev.Info()
	if format != output.FormatTable {
		return output.Print(cmd.OutOrStdout(), format, info)
	}
	return printInfoTable(cmd.OutOrStdout(), info)
}

func printInfoTable(w io.Writer, info btt.Info) error {
	if err := output.SimpleTable(w, [][2]string{
		{"UUID", info.UUID},
		{"State", info.State},
		{"Raw size", bytesize.ByteSize(info.RawSize).String()},
		{"Sector size", strconv.FormatUint(uint64(info.LBASize), 10)},
		{"Sectors", strconv.FormatUint(info.NumLBA, 10)},
		{"Lanes", strconv.FormatUint(uint64(info.Lanes), 10)},
		{"Read-only", strconv.FormatBool(info.ReadOnly)},
	}); err != nil {
		return err
	}

	if len(info.Arenas) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(w)

	table := output.NewTableData("Arena", "Size", "First LBA", "External", "Internal", "NFree", "Version", "Flags")
	for _, a := range info.Arenas {
		table.AddRow(
			strconv.Itoa(a.Index),
			bytesize.ByteSize(a.Size).String(),
			strconv.FormatUint(a.ExternalLBAStart, 10),
			strconv.FormatUint(uint64(a.ExternalNLBA), 10),
			strconv.FormatUint(uint64(a.InternalNLBA), 10),
			strconv.FormatUint(uint64(a.NFree), 10),
			fmt.Sprintf("%d.%d", a.VersionMajor, a.VersionMinor),
			fmt.Sprintf("%#x", a.Flags),
		)
	}
	return output.PrintTable(w, table)
}

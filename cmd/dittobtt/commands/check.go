package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobtt/internal/cli/output"
)

var checkOutput string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify on-media metadata",
	Long: `Attach the configured device read-only and verify its metadata: the
primary and mirror info blocks, every lane's log pair, map and log values,
and that no internal block is claimed twice.

Nothing is repaired. The command exits non-zero when problems are found.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(checkOutput)
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

	report, err := dev.Check(cmd.Context())
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if format != output.FormatTable {
		if err := output.Print(out, format, report); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(out, "Arenas checked: %d\nMap entries:    %d\nTrimmed:        %d\n",
			report.ArenasChecked, report.MapEntries, report.Trimmed)
		if !report.OK() {
			_, _ = fmt.Fprintln(out)
			table := output.NewTableData("Arena", "Lane", "LBA", "Problem")
			for _, p := range report.Problems {
				table.AddRow(strconv.Itoa(p.Arena), strconv.Itoa(p.Lane), strconv.FormatInt(p.LBA, 10), p.Detail)
			}
			if err := output.PrintTable(out, table); err != nil {
				return err
			}
		}
	}

	if !report.OK() {
		return fmt.Errorf("%d problem(s) found", len(report.Problems))
	}
	if format == output.FormatTable {
		output.PrintStatus(out, output.StatusOK, "No problems found", false)
	}
	return nil
}

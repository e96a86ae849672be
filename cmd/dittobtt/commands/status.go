package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobtt/internal/cli/health"
	"github.com/marmos91/dittobtt/internal/cli/output"
	"github.com/marmos91/dittobtt/internal/cli/timeutil"
)

var (
	statusOutput string
	statusAPIURL string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Query a running "dittobtt serve" through its health endpoints and show
whether it is up and whether its device is ready.

Examples:
  dittobtt status
  dittobtt status --api http://10.0.0.5:9080 --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAPIURL, "api", "http://localhost:8080", "API server base URL")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := health.NewClient(statusAPIURL).Check(cmd.Context())
	if format != output.FormatTable {
		return output.Print(cmd.OutOrStdout(), format, status)
	}
	printStatusTable(cmd.OutOrStdout(), status)
	return nil
}

func printStatusTable(w io.Writer, status *health.Status) {
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "dittobtt Server Status")
	_, _ = fmt.Fprintln(w, "======================")
	_, _ = fmt.Fprintln(w)

	switch {
	case status.Ready:
		_, _ = fmt.Fprintf(w, "  Status:     \033[32m● Ready\033[0m\n")
	case status.Running:
		_, _ = fmt.Fprintf(w, "  Status:     \033[33m● Running (not ready)\033[0m\n")
	default:
		_, _ = fmt.Fprintf(w, "  Status:     \033[31m○ Stopped\033[0m\n")
	}

	if l := status.Liveness; l != nil {
		_, _ = fmt.Fprintf(w, "  Started:    %s\n", timeutil.FormatTime(l.StartedAt))
		_, _ = fmt.Fprintf(w, "  Uptime:     %s\n", timeutil.FormatUptime(l.Uptime))
	}
	if r := status.Readiness; r != nil {
		_, _ = fmt.Fprintf(w, "  Sectors:    %d x %d bytes\n", r.NLBA, r.LBASize)
		_, _ = fmt.Fprintf(w, "  Read-only:  %t\n", r.ReadOnly)
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "  %s\n", status.Message)
	_, _ = fmt.Fprintln(w)
}

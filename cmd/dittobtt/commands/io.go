package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	readCount  int
	readOut    string
	readHex    bool
	writeIn    string
	writePad   bool
	writeCount int
)

var readCmd = &cobra.Command{
	Use:   "read <sector>",
	Short: "Read sectors from the device",
	Long: `Read one or more consecutive sectors and write them to stdout or a file.

Sectors that were never written read as zeros.

Examples:
  # Dump sector 0 as hex
  dittobtt read 0 --hex

  # Copy 16 sectors to a file
  dittobtt read 128 --count 16 --out chunk.bin`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

var writeCmd = &cobra.Command{
	Use:   "write <sector>",
	Short: "Write sectors to the device",
	Long: `Write data from stdin or a file starting at the given sector.

The input must be a whole number of sectors unless --pad is given, in which
case the last sector is zero-filled. Each sector is written atomically.

Examples:
  dittobtt write 0 --in boot.img
  echo hello | dittobtt write 7 --pad`,
	Args: cobra.ExactArgs(1),
	RunE: runWrite,
}

func init() {
	readCmd.Flags().IntVarP(&readCount, "count", "n", 1, "Number of sectors to read")
	readCmd.Flags().StringVar(&readOut, "out", "", "Output file (default: stdout)")
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Print a hex dump instead of raw bytes")

	writeCmd.Flags().StringVar(&writeIn, "in", "", "Input file (default: stdin)")
	writeCmd.Flags().BoolVar(&writePad, "pad", false, "Zero-pad the input to a whole sector")
	writeCmd.Flags().IntVarP(&writeCount, "max-sectors", "m", 0, "Refuse input longer than this many sectors (0: no limit)")
}

func runRead(cmd *cobra.Command, args []string) error {
	sector, err := parseSector(args[0])
	if err != nil {
		return err
	}
	if readCount < 1 {
		return fmt.Errorf("--count must be at least 1")
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

	buf := make([]byte, readCount*int(dev.LBASize()))
	if err := dev.Read(cmd.Context(), sector, buf); err != nil {
		return fmt.Errorf("read failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if readOut != "" {
		f, err := os.Create(readOut)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if readHex {
		dumper := hex.Dumper(out)
		if _, err := dumper.Write(buf); err != nil {
			return err
		}
		return dumper.Close()
	}
	_, err = out.Write(buf)
	return err
}

func runWrite(cmd *cobra.Command, args []string) error {
	sector, err := parseSector(args[0])
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if writeIn != "" {
		f, err := os.Open(writeIn)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dev, err := openDevice(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = dev.Close() }()

	lbaSize := int(dev.LBASize())
	if rem := len(data) % lbaSize; rem != 0 || len(data) == 0 {
		if !writePad {
			return fmt.Errorf("input of %d bytes is not a whole number of %d-byte sectors (use --pad)", len(data), lbaSize)
		}
		data = append(data, make([]byte, lbaSize-rem)...)
	}
	if writeCount > 0 && len(data)/lbaSize > writeCount {
		return fmt.Errorf("input spans %d sectors, limit is %d", len(data)/lbaSize, writeCount)
	}

	if err := dev.Write(cmd.Context(), sector, data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d sector(s) at %d\n", len(data)/lbaSize, sector)
	return nil
}

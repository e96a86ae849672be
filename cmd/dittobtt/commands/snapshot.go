package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobtt/internal/bytesize"
	"github.com/marmos91/dittobtt/internal/cli/prompt"
	"github.com/marmos91/dittobtt/pkg/config"
	"github.com/marmos91/dittobtt/pkg/metrics"
	"github.com/marmos91/dittobtt/pkg/snapshot"
)

var (
	snapshotBucket string
	snapshotPrefix string
	restoreForce   bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy the raw device image to S3",
	Long: `Upload the raw extent of the configured store to an S3-compatible
bucket as fixed-size parts plus a manifest. All-zero parts are not uploaded.

The image is copied below the translation layer, so stop writers first for
a consistent snapshot.

Examples:
  dittobtt backup --bucket backups --prefix pmem0/2026-10-14`,
	RunE: runBackup,
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a raw device image from S3",
	Long: `Overwrite the configured store with an image previously written by
"dittobtt backup". The store must be at least as large as the image.

Examples:
  dittobtt restore --bucket backups --prefix pmem0/2026-10-14 --force`,
	RunE: runRestore,
}

func init() {
	for _, c := range []*cobra.Command{backupCmd, restoreCmd} {
		c.Flags().StringVar(&snapshotBucket, "bucket", "", "Bucket (overrides snapshot.bucket)")
		c.Flags().StringVar(&snapshotPrefix, "prefix", "", "Key prefix (overrides snapshot.prefix)")
	}
	restoreCmd.Flags().BoolVarP(&restoreForce, "force", "f", false, "Skip confirmation prompt")
}

// snapshotSetup resolves the bucket settings and builds the S3 client.
func snapshotSetup(cmd *cobra.Command, cfg *config.Config) (*snapshot.S3Client, snapshot.Options, error) {
	sc := cfg.Snapshot
	if snapshotBucket != "" {
		sc.Bucket = snapshotBucket
	}
	if snapshotPrefix != "" {
		sc.Prefix = snapshotPrefix
	}
	if sc.Bucket == "" {
		return nil, snapshot.Options{}, fmt.Errorf("no bucket configured (set snapshot.bucket or --bucket)")
	}

	client, err := snapshot.NewS3Client(cmd.Context(), snapshot.S3Config{
		Bucket:         sc.Bucket,
		Region:         sc.Region,
		Endpoint:       sc.Endpoint,
		ForcePathStyle: sc.ForcePathStyle,
	})
	if err != nil {
		return nil, snapshot.Options{}, err
	}

	return client, snapshot.Options{
		Bucket:      sc.Bucket,
		Prefix:      sc.Prefix,
		PartSize:    sc.PartSize.Uint64(),
		Concurrency: sc.Concurrency,
		Metrics:     metrics.NewSnapshotMetrics(),
	}, nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, opts, err := snapshotSetup(cmd, cfg)
	if err != nil {
		return err
	}

	st, err := config.OpenStore(cfg.Store, true)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	m, err := snapshot.Export(cmd.Context(), st, client, opts)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	uploaded := m.UploadedParts()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Backed up %s to s3://%s/%s\n",
		bytesize.ByteSize(m.Size), opts.Bucket, snapshot.ManifestKey(opts.Prefix))
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  Parts: %d uploaded, %d zero\n", uploaded, len(m.Parts)-uploaded)
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Device.ReadOnly {
		return fmt.Errorf("refusing to restore onto a read-only device")
	}
	client, opts, err := snapshotSetup(cmd, cfg)
	if err != nil {
		return err
	}

	ok, err := prompt.ConfirmWithForce(
		fmt.Sprintf("Overwrite %s store %q with s3://%s/%s", cfg.Store.Type, cfg.Store.Path, opts.Bucket, opts.Prefix),
		restoreForce)
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}

	st, err := config.OpenStore(cfg.Store, false)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	m, err := snapshot.Import(cmd.Context(), st, client, opts)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Restored %s image of device %s\n", bytesize.ByteSize(m.Size), m.UUID)
	return nil
}

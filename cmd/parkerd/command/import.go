package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"parking-finder-backend/internal/importer"
	"parking-finder-backend/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Run a single import cycle from the parking feed",
	Long: `Fetch every page of the configured parking feed once, normalize
restriction labels and upsert lots and restriction windows, then exit.
The importer.enabled flag is ignored.`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func runImport(cmd *cobra.Command, _ []string) error {
	cfg, gormDB, err := setup()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	n, err := importer.NewService(cfg, store.NewGormStore(gormDB), nil).ImportOnce(ctx)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	slog.Info("import complete", "lots", n)
	return nil
}

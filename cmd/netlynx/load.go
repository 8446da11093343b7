package main

import (
	"path/filepath"
	"strings"

	"netlynx/internal/database"
	"netlynx/internal/database/repositories"
	"netlynx/internal/ingestion"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newLoadCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "load <export.json>",
		Short: "Store a finished NetLog export as a capture",
		Long: `Load decodes a complete NetLog export, classifies its sources and stores
them under a capture name. A capture with the same name is replaced. The
capture is served by the next "netlynx serve".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			db, err := database.NewConnection(&database.Config{
				Path:         cfg.Database.Path,
				MaxOpenConns: cfg.Database.MaxOpenConns,
				MaxIdleConns: cfg.Database.MaxIdleConns,
				ConnMaxLife:  cfg.Database.ConnMaxLife,
			}, logger)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			store := &ingestion.Store{
				Captures: repositories.NewCaptureRepository(db),
				Sources:  repositories.NewSourceRepository(db, logger),
				Events:   repositories.NewEventRepository(db, logger),
			}

			if name == "" {
				name = captureName(args[0])
			}
			loader := ingestion.NewLoader(store, trackerConfig(cfg), cfg.Performance.BatchSize, logger)
			result, err := loader.LoadFile(args[0], name)
			if err != nil {
				return err
			}

			pterm.Success.Printfln("Loaded %s as %q: %s events, %s sources, %s skipped",
				args[0], name,
				humanize.Comma(int64(result.Events)),
				humanize.Comma(int64(result.Tracker.Len())),
				humanize.Comma(int64(result.Skipped)))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Capture name (default: export file name)")
	return cmd
}

// captureName derives a capture name from an export path
func captureName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

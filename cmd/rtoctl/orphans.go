package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"rtodocs/internal/config"
	"rtodocs/internal/database"
	"rtodocs/internal/logging"
	"rtodocs/internal/repository/postgres"
	"rtodocs/internal/service"
	"rtodocs/internal/storage"
)

// opener builds the document service against the configured backends.
// The returned func releases them.
type opener func(ctx context.Context) (service.DocumentService, func(), error)

func openFromConfig(cfg *config.AppConfig) opener {
	return func(ctx context.Context) (service.DocumentService, func(), error) {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}

		var store storage.Storage
		switch cfg.Storage.Driver {
		case config.StorageDriverMinIO:
			store, err = storage.NewMinIO(ctx, cfg.Storage.MinIO, nil)
		default:
			store, err = storage.NewDisk(cfg.Storage.UploadDir)
		}
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("init storage: %w", err)
		}

		svc := service.NewDocumentService(store, postgres.NewDocumentPostgres(db),
			service.WithLogger(logging.New(os.Stderr, cfg.Location())),
		)
		return svc, func() { _ = db.Close() }, nil
	}
}

func orphansCmd(open opener) *cobra.Command {
	var (
		remove bool
		minAge time.Duration
	)

	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List stored files that no document record points at",
		Long: `Compare the upload storage with documents.file_path and print every key
without a record. Such files are left behind when an upload failed and its
cleanup failed too. Files younger than --min-age are skipped because their
record may still be on its way.

Nothing is removed unless --delete is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			keys, err := svc.FindOrphans(ctx, minAge)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, k := range keys {
				fmt.Fprintln(out, k)
			}
			fmt.Fprintf(out, "%d orphaned file(s)\n", len(keys))

			if !remove || len(keys) == 0 {
				return nil
			}
			if err := svc.RemoveOrphans(ctx, keys); err != nil {
				return fmt.Errorf("remove orphans: %w", err)
			}
			fmt.Fprintf(out, "removed %d file(s)\n", len(keys))
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "delete", false, "remove the orphaned files")
	cmd.Flags().DurationVar(&minAge, "min-age", time.Hour, "ignore files younger than this")

	return cmd
}

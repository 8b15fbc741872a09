package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aifans/aifans/internal/pkg/storage"
)

func storageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "File storage maintenance",
	}
	cmd.AddCommand(migrateOSSCmd())
	return cmd
}

func migrateOSSCmd() *cobra.Command {
	var opts storage.MigrateOptions
	cmd := &cobra.Command{
		Use:   "migrate-oss",
		Short: "Copy local files to OSS and switch their rows to the oss backend",
		Long: `Copies every file still on local disk to the configured OSS bucket.
Files that fail stay local; running the command again retries them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := container(ctx)
			if err != nil {
				return err
			}

			report, err := c.Services.Storage.MigrateToOSS(ctx, opts)
			if report != nil {
				fmt.Printf("Migrated: %d\nFailed:   %d\n", report.Migrated, report.Failed)
				for _, e := range report.Errors {
					fmt.Printf("  %s\n", e)
				}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&opts.BatchSize, "batch", 100, "Rows per page")
	cmd.Flags().BoolVar(&opts.DeleteLocal, "delete-local", false, "Remove the local copy after a successful upload")
	return cmd
}

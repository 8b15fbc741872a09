package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aifans/aifans/internal/pkg/bootstrap"
	"github.com/aifans/aifans/internal/pkg/env"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "aifansctl",
		Short:   "Maintenance commands for the AIFans membership backend",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			env.SetupEnvFile()
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(codesCmd())
	rootCmd.AddCommand(storageCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func container(ctx context.Context) (*bootstrap.Container, error) {
	c, err := bootstrap.NewContainer(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return c, nil
}

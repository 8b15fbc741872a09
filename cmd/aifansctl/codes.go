package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func codesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Manage redemption codes",
	}
	cmd.AddCommand(codesIssueCmd())
	return cmd
}

func codesIssueCmd() *cobra.Command {
	var (
		days   int
		count  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue redemption codes worth --days of premium",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := container(ctx)
			if err != nil {
				return err
			}

			codes, err := c.Services.Codes.IssueBatch(ctx, days, count)
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(codes); encErr != nil {
					return encErr
				}
			} else {
				for _, rc := range codes {
					fmt.Println(rc.Code)
				}
			}
			if err != nil {
				return fmt.Errorf("issued %d of %d codes: %w", len(codes), count, err)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 30, "Premium days per code")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of codes")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

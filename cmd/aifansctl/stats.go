package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print daily membership counters and role totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := container(ctx)
			if err != nil {
				return err
			}

			roles, err := c.Repos.User.CountByRole(ctx)
			if err != nil {
				return err
			}
			fmt.Println("Users by role")
			fmt.Println(strings.Repeat("=", 40))
			names := make([]string, 0, len(roles))
			for r := range roles {
				names = append(names, r)
			}
			sort.Strings(names)
			for _, r := range names {
				fmt.Printf("  %-10s %d\n", r, roles[r])
			}

			if !c.RedisReady {
				fmt.Println("\nCounters: Redis unavailable")
				return nil
			}
			daily, err := c.Counter.Last(ctx, days)
			if err != nil {
				return err
			}
			fmt.Println("\nDaily counters")
			fmt.Println(strings.Repeat("=", 40))
			for _, d := range daily {
				fmt.Printf("  %s", d.Date)
				keys := make([]string, 0, len(d.Values))
				for k := range d.Values {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("  %s=%d", k, d.Values[k])
				}
				fmt.Println()
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 7, "Days to show")
	return cmd
}

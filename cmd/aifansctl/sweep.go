package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aifans/aifans/internal/pkg/membership"
	"github.com/aifans/aifans/internal/pkg/scheduler"
)

func sweepCmd() *cobra.Command {
	var noLock bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Downgrade PREMIUM users whose membership has expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := container(ctx)
			if err != nil {
				return err
			}

			sched := c.Scheduler
			if noLock {
				sched = scheduler.New(scheduler.ConfigFromEnv(), scheduler.NopLocker{})
			}

			var downgraded int64
			ran, err := sched.RunLocked(ctx, membership.SweepJobName, func(ctx context.Context) error {
				n, err := c.Services.Sweeper.Run(ctx)
				downgraded = n
				return err
			})
			if err != nil {
				return err
			}
			if !ran {
				fmt.Println("Another sweep holds the lock, nothing done")
				return nil
			}
			fmt.Printf("Downgraded %d users\n", downgraded)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noLock, "no-lock", false, "Skip the Redis lock")
	return cmd
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/homefix/app"
	"github.com/kilianp07/homefix/core/dispatch"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one offer expiry and re-dispatch pass",
	RunE:  sweepOnce,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func sweepOnce(cmd *cobra.Command, _ []string) error {
	return withService(cmd, func(ctx context.Context, svc *app.Service) error {
		var rep dispatch.SweepReport
		err := svc.Once(ctx, func(ctx context.Context) error {
			var err error
			rep, err = svc.Arbitrator.Sweep(ctx)
			return err
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "expired=%d redispatched=%d exhausted=%d superseded=%d\n", rep.Expired, rep.Redispatched, rep.Exhausted, rep.Superseded)
		return err
	})
}

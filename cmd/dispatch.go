package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/homefix/app"
)

var (
	dispatchBooking    string
	dispatchCandidates int
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Issue job offers for a booking",
	RunE:  dispatchBookingOffers,
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchBooking, "booking", "", "booking id")
	dispatchCmd.Flags().IntVar(&dispatchCandidates, "candidates", 0, "number of technicians to offer the job to (0 uses the configured default)")
	_ = dispatchCmd.MarkFlagRequired("booking")
	rootCmd.AddCommand(dispatchCmd)
}

func dispatchBookingOffers(cmd *cobra.Command, _ []string) error {
	return withService(cmd, func(ctx context.Context, svc *app.Service) error {
		var out []byte
		err := svc.Once(ctx, func(ctx context.Context) error {
			offers, err := svc.Engine.Dispatch(ctx, dispatchBooking, dispatchCandidates)
			if err != nil {
				return err
			}
			out, err = json.MarshalIndent(offers, "", "  ")
			return err
		})
		if err != nil {
			return fmt.Errorf("dispatch %s: %w", dispatchBooking, err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	})
}

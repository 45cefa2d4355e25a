package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/kilianp07/homefix/core/commission"
)

var (
	splitPrice int64
	splitRate  float64
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Print the technician and platform shares of a price",
	Long:  "Splits --price (minor currency units) at --rate percent, or at the configured commission rate when --rate is omitted.",
	RunE:  split,
}

func init() {
	splitCmd.Flags().Int64Var(&splitPrice, "price", 0, "price in minor currency units")
	splitCmd.Flags().Float64Var(&splitRate, "rate", 0, "commission rate in percent")
	_ = splitCmd.MarkFlagRequired("price")
	rootCmd.AddCommand(splitCmd)
}

func split(cmd *cobra.Command, _ []string) error {
	var (
		s   commission.Split
		err error
	)
	if cmd.Flags().Changed("rate") {
		s, err = commission.SplitWithRate(splitPrice, splitRate)
	} else {
		cfg, cerr := loadConfig(cmd)
		if cerr != nil {
			return cerr
		}
		s, err = commission.NewCalculator(cfg.Commission.RateProvider()).Split(context.Background(), splitPrice)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/model"
)

var (
	gapsTickers []string
	gapsSources []string
)

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "List required source types missing per ticker",
	Long:  "Prints, for each ticker, the source types that have not contributed a document yet. Tickers default to the latest portfolio snapshot and sources to every type.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		required, err := model.ParseSourceTypes(gapsSources)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		tickers := gapsTickers
		if len(tickers) == 0 {
			tickers = env.Store.CurrentHoldings()
		}
		return printJSON(cmd.OutOrStdout(), env.Store.CoverageGaps(tickers, required))
	},
}

func init() {
	gapsCmd.Flags().StringSliceVar(&gapsTickers, "tickers", nil, "tickers to check (default current holdings)")
	gapsCmd.Flags().StringSliceVar(&gapsSources, "sources", nil, "required source types (default all)")
	rootCmd.AddCommand(gapsCmd)
}

package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/temporal"
)

var (
	portfolioTickers []string
	portfolioAt      string
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Record a portfolio holdings snapshot and print the delta",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var at time.Time
		if portfolioAt != "" {
			t, ok := temporal.ParseSourceDate(portfolioAt)
			if !ok {
				return eris.Errorf("portfolio: unparseable --at %q", portfolioAt)
			}
			at = t
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		delta, err := env.Store.RecordPortfolioSnapshot(ctx, portfolioTickers, at)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), delta)
	},
}

func init() {
	portfolioCmd.Flags().StringSliceVar(&portfolioTickers, "tickers", nil, "comma-separated holdings")
	portfolioCmd.Flags().StringVar(&portfolioAt, "at", "", "snapshot time (default now)")
	_ = portfolioCmd.MarkFlagRequired("tickers")
	rootCmd.AddCommand(portfolioCmd)
}

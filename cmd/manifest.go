package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/model"
)

var manifestJSON bool

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect the ingestion manifest",
}

var manifestStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the manifest ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		stats := env.Store.Stats()
		if manifestJSON {
			return printJSON(cmd.OutOrStdout(), stats)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "backend\t%s\n", env.Store.Backend().Name())
		fmt.Fprintf(tw, "documents\t%s\n", humanize.Comma(int64(stats.Documents)))
		fmt.Fprintf(tw, "entities\t%s\n", humanize.Comma(int64(stats.Entities)))
		for _, st := range model.SourceTypes {
			fmt.Fprintf(tw, "  %s\t%d\n", st, stats.BySourceType[st])
		}
		fmt.Fprintf(tw, "snapshots\t%d\n", stats.Snapshots)
		fmt.Fprintf(tw, "holdings\t%v\n", stats.CurrentHoldings)
		fmt.Fprintf(tw, "covered tickers\t%d\n", stats.CoveredTickers)
		return tw.Flush()
	},
}

var manifestRecordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List manifest records oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		records := env.Store.Records()
		if manifestJSON {
			return printJSON(cmd.OutOrStdout(), records)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "HASH\tSOURCE\tENTITIES\tFIRST SEEN")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ContentHash[:min(12, len(r.ContentHash))], r.SourceType, r.EntityCount, humanize.Time(r.FirstSeen))
		}
		return tw.Flush()
	},
}

func init() {
	manifestCmd.PersistentFlags().BoolVar(&manifestJSON, "json", false, "print JSON")
	manifestCmd.AddCommand(manifestStatsCmd, manifestRecordsCmd)
	rootCmd.AddCommand(manifestCmd)
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/ingest"
)

var (
	ingestInput      string
	ingestOutput     string
	ingestDeadLetter string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest documents through the manifest and temporal enhancer",
	Long:  "Reads documents (with pre-extracted entities and edges) from a JSON or YAML file, skips anything already in the manifest and writes the enhanced graph batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		items, err := ingest.LoadItems(ingestInput)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close(context.WithoutCancel(ctx))

		var writer ingest.GraphWriter
		if ingestOutput != "" {
			f, err := os.Create(ingestOutput)
			if err != nil {
				return eris.Wrapf(err, "create %s", ingestOutput)
			}
			defer f.Close() //nolint:errcheck
			writer = ingest.NewJSONWriter(f)
		}

		opts := ingest.Options{Concurrency: cfg.Ingest.MaxConcurrentDocuments}
		deadLetterPath := cfg.Ingest.DeadLetterPath
		if cmd.Flags().Changed("dead-letter") {
			deadLetterPath = ingestDeadLetter
		}
		if deadLetterPath != "" {
			opts.DeadLetters = ingest.NewFileDeadLetters(deadLetterPath)
		}

		p := ingest.New(env.Store, ingest.NewFileExtractor(items), writer, env.Enhancer, opts)
		summary, err := p.Run(ctx, items)
		if err != nil {
			if len(summary.Stranded) > 0 {
				// The stranded hashes are needed to repair the graph by hand.
				_ = printJSON(cmd.OutOrStdout(), summary)
			}
			return err
		}
		return printJSON(cmd.OutOrStdout(), summary)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestInput, "input", "", "documents file (JSON or YAML)")
	ingestCmd.Flags().StringVar(&ingestOutput, "output", "", "write the graph batch to this JSON file")
	ingestCmd.Flags().StringVar(&ingestDeadLetter, "dead-letter", "", "record failed documents in this JSON file (default ingest.dead_letter_path)")
	_ = ingestCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(ingestCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/synthesis"
)

var (
	querySources string
	queryGraph   string
	queryAnswer  string
	queryJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   `query "<question>"`,
	Short: "Score an answer against its sources",
	Long:  "Classifies the question, enriches the sources with type, rank and freshness, computes a confidence score with its explanation and prints the display cards.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		engine, err := synthesis.NewEngineFromConfig(cfg)
		if err != nil {
			return err
		}

		req, err := buildQueryRequest(args[0], querySources, queryGraph, queryAnswer)
		if err != nil {
			return err
		}

		result, err := engine.Evaluate(cmd.Context(), req)
		if err != nil {
			return err
		}
		cards := synthesis.FormatDisplay(result)
		if queryJSON {
			return printJSON(cmd.OutOrStdout(), map[string]any{"result": result, "cards": cards})
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), cards.Markdown())
		return err
	},
}

// sourcesFile is the object form of --sources.
type sourcesFile struct {
	Answer       string                      `json:"answer"`
	Sources      []synthesis.SourceReference `json:"sources"`
	GraphContext *synthesis.GraphContext     `json:"graph_context"`
}

// buildQueryRequest assembles the request from the command inputs. The
// sources file is either an array of sources or an object carrying sources,
// an answer and a graph context. Flags take precedence over file contents.
func buildQueryRequest(question, sourcesPath, graphPath, answer string) (synthesis.QueryRequest, error) {
	req := synthesis.QueryRequest{Query: &question, Answer: answer}

	if sourcesPath != "" {
		data, err := os.ReadFile(sourcesPath)
		if err != nil {
			return req, eris.Wrapf(err, "read %s", sourcesPath)
		}
		if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
			if err := json.Unmarshal(data, &req.Sources); err != nil {
				return req, eris.Wrapf(err, "decode %s", sourcesPath)
			}
		} else {
			var f sourcesFile
			if err := json.Unmarshal(data, &f); err != nil {
				return req, eris.Wrapf(err, "decode %s", sourcesPath)
			}
			req.Sources = f.Sources
			req.GraphContext = f.GraphContext
			if req.Answer == "" {
				req.Answer = f.Answer
			}
		}
	}

	if graphPath != "" {
		data, err := os.ReadFile(graphPath)
		if err != nil {
			return req, eris.Wrapf(err, "read %s", graphPath)
		}
		var gc synthesis.GraphContext
		if err := json.Unmarshal(data, &gc); err != nil {
			return req, eris.Wrapf(err, "decode %s", graphPath)
		}
		req.GraphContext = &gc
	}
	return req, nil
}

func init() {
	queryCmd.Flags().StringVar(&querySources, "sources", "", "sources JSON file")
	queryCmd.Flags().StringVar(&queryGraph, "graph", "", "graph context JSON file with causal paths")
	queryCmd.Flags().StringVar(&queryAnswer, "answer", "", "answer text to display")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(queryCmd)
}

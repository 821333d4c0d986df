package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/evaluation"
)

func newEvalCmd(opts *rootOptions) *cobra.Command {
	var labelsPath string
	var k int

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score labelled result lists (precision, recall, P@k, R@k)",
		Long: `eval reads a semicolon-separated relevance file with "query" and
"is_relevant" columns, one row per returned result in ranked order, and
prints per-query metrics followed by their mean.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(labelsPath)
			if err != nil {
				return err
			}
			defer f.Close()
			return runEval(cmd.OutOrStdout(), f, k, opts.jsonOutput)
		},
	}
	cmd.Flags().StringVar(&labelsPath, "labels", "relevance_labels.csv", "relevance labels file")
	cmd.Flags().IntVar(&k, "k", 5, "cut-off for precision@k and recall@k")
	return cmd
}

func runEval(out io.Writer, in io.Reader, k int, asJSON bool) error {
	if k < 1 {
		return fmt.Errorf("k must be >= 1, got %d", k)
	}
	judgements, err := evaluation.ReadJudgements(in)
	if err != nil {
		return err
	}
	rows := judgements.EvaluateAll(k)
	mean := evaluation.Mean(rows)

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"k": k, "queries": rows, "mean": mean})
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "QUERY\tPRECISION\tRECALL\tF1\tP@%d\tR@%d\n", k, k)
	for _, m := range append(rows, mean) {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n",
			m.Query, m.Precision, m.Recall, m.F1, m.PrecisionAtK, m.RecallAtK)
	}
	return tw.Flush()
}

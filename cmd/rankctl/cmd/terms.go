package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/store/postgres"
	pkgpostgres "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/postgres"
)

// termSource is the part of the index store the terms command reads.
type termSource interface {
	CorpusStats(ctx context.Context) (ranker.CorpusStats, error)
	DocumentFrequency(ctx context.Context, term string) (int, error)
}

// TermInfo describes how one query term is weighted by BM25.
type TermInfo struct {
	Term              string  `json:"term"`
	DocumentFrequency int     `json:"document_frequency"`
	IDF               float64 `json:"idf"`
}

func newTermsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "terms <query>",
		Short: "Show the index terms of a query with their document frequency and idf",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := pkgpostgres.New(opts.cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()
			return runTerms(cmd.Context(), cmd.OutOrStdout(), postgres.New(db), strings.Join(args, " "), opts.jsonOutput)
		},
	}
}

func runTerms(ctx context.Context, out io.Writer, src termSource, query string, asJSON bool) error {
	corpus, err := src.CorpusStats(ctx)
	if err != nil {
		return err
	}
	terms := ranker.DistinctTerms(tokenizer.Terms(query))
	infos := make([]TermInfo, 0, len(terms))
	for _, term := range terms {
		df, err := src.DocumentFrequency(ctx, term)
		if err != nil {
			return err
		}
		info := TermInfo{Term: term, DocumentFrequency: df}
		if df > 0 {
			info.IDF = ranker.IDF(corpus.DocCount, int64(df))
		}
		infos = append(infos, info)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"documents":      corpus.DocCount,
			"avg_doc_length": corpus.AvgDocLength,
			"terms":          infos,
		})
	}

	fmt.Fprintf(out, "documents: %d, avg length: %.2f\n", corpus.DocCount, corpus.AvgDocLength)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TERM\tDF\tIDF")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%.4f\n", info.Term, info.DocumentFrequency, info.IDF)
	}
	return tw.Flush()
}

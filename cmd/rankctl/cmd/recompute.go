package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/graph/batch"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/store/postgres"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
	pkgpostgres "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/tracing"
)

func newRecomputeCmd(opts *rootOptions, algorithm, short string) *cobra.Command {
	var noPublish bool

	cmd := &cobra.Command{
		Use:   algorithm,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecompute(cmd.Context(), cmd.OutOrStdout(), opts, algorithm, !noPublish)
		},
	}
	cmd.Flags().BoolVar(&noPublish, "no-publish", false, "do not announce the new scores on Kafka")
	return cmd
}

func runRecompute(ctx context.Context, out io.Writer, opts *rootOptions, algorithm string, publish bool) error {
	cfg := opts.cfg

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	db, err := pkgpostgres.New(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	store := postgres.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	var publisher kafka.Publisher
	if publish {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ScoresReplaced)
		defer producer.Close()
		publisher = producer
	}

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	runner := batch.NewRunner(store, store, publisher, batch.OptionsFromConfig(cfg.Graph), m)
	slog.Info("starting graph batch job", "algorithm", algorithm, "publish", publish)

	var events []graph.ScoresReplaced
	switch algorithm {
	case graph.AlgorithmPageRank:
		ev, err := runner.RecomputePageRank(ctx)
		if err != nil {
			return err
		}
		events = append(events, ev)
	case graph.AlgorithmHITS:
		ev, err := runner.RecomputeHits(ctx)
		if err != nil {
			return err
		}
		events = append(events, ev)
	default:
		events, err = runner.RecomputeAll(ctx)
		if err != nil {
			return err
		}
	}
	return printEvents(out, events, opts.jsonOutput)
}

func printEvents(out io.Writer, events []graph.ScoresReplaced, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ALGORITHM\tNODES\tEDGES\tITERATIONS\tCONVERGED\tRUN ID")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%t\t%s\n",
			ev.Algorithm, ev.Nodes, ev.Edges, ev.Iterations, ev.Converged, ev.RunID)
	}
	return tw.Flush()
}

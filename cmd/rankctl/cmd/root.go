// Package cmd provides the rankctl commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/logger"
)

type rootOptions struct {
	configPath string
	jsonOutput bool
	cfg        *config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "rankctl",
		Short: "Compute and inspect the link-analysis scores used for ranking",
		Long: `rankctl recomputes the PageRank and HITS tables from the crawled link
graph, replacing each table atomically and notifying running searchers.
It also scores labelled result lists for offline evaluation and shows how
query terms are weighted.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("loading .env: %w", err)
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "configs/development.yaml", "path to config file")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")

	cmd.AddCommand(
		newRecomputeCmd(opts, "pagerank", "Recompute and replace the PageRank table"),
		newRecomputeCmd(opts, "hits", "Recompute and replace the HITS hub/authority table"),
		newRecomputeCmd(opts, "all", "Recompute PageRank and HITS concurrently over one graph load"),
		newEvalCmd(opts),
		newTermsCmd(opts),
	)
	return cmd
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

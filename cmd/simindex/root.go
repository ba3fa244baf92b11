package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	root       string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "simindex",
		Short: "Approximate document similarity index",
		Long: `simindex builds bloom filter fingerprints of every document in a vault
and finds related documents by comparing them.

Examples:
  simindex index --root ./notes          # build or refresh the cache
  simindex related notes/a.md            # list documents related to a.md
  simindex serve --config simindex.yaml  # HTTP API, metrics and health checks
  simindex loadtest --root ./notes       # drive a running server`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVarP(&g.root, "root", "r", "", "vault root directory (overrides config)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	cmd.AddCommand(
		newIndexCmd(g),
		newRelatedCmd(g),
		newServeCmd(g),
		newWatchCmd(g),
		newEvaluateCmd(g),
		newCorpusGenCmd(g),
		newLoadTestCmd(g),
	)
	return cmd
}

func (g *globalFlags) load() (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(g.configPath, g.root)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	return cfg, newLogger(cfg), nil
}

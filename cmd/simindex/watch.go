package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/watcher"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Index the vault, then keep it current as files change",
		Long: `Watch runs an initial index and then re-indexes documents as they are
written, renamed or deleted. The cache is saved on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			if cfg.Vault.Backend != "fs" {
				return fmt.Errorf("watch needs the fs vault backend, got %q", cfg.Vault.Backend)
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			// Watches are registered before the initial scan so edits made
			// during it are not lost.
			w, err := watcher.New(a.fs, a.index, cfg.Watcher, a.metrics, log)
			if err != nil {
				return fmt.Errorf("starting watcher: %w", err)
			}
			if err := a.index.Initialize(ctx, progressPrinter(log, 1000)); err != nil {
				return fmt.Errorf("indexing: %w", err)
			}
			runErr := w.Run(ctx)
			if err := a.index.Save(context.WithoutCancel(ctx)); err != nil {
				log.Warn("saving cache failed", "error", err)
			}
			return runErr
		},
	}
}

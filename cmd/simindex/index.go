package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newIndexCmd(g *globalFlags) *cobra.Command {
	var (
		force  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the vault and persist the cache",
		Long: `Index loads the persistent cache, re-indexes documents that are new or
changed since it was written and saves the result. --force ignores the cache
and rebuilds every document.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			progress := progressPrinter(log, 500)
			if force {
				err = a.index.ForceReindex(ctx, progress)
			} else {
				err = a.index.Initialize(ctx, progress)
			}
			if err != nil {
				return fmt.Errorf("indexing: %w", err)
			}
			if !a.index.IsInitialized() {
				return fmt.Errorf("indexing stopped before completion")
			}

			stats := a.index.Stats()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %d documents in %s\n", stats.Documents, time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(out, "  ngram sizes:     %v\n", stats.NgramSizes)
			fmt.Fprintf(out, "  bloom sizes:     %v\n", stats.BloomSizes)
			fmt.Fprintf(out, "  hash functions:  %v\n", stats.HashFunctions)
			fmt.Fprintf(out, "  threshold:       %.2f\n", stats.SimilarityThreshold)
			fmt.Fprintf(out, "  vocabulary:      %d\n", stats.Vocabulary)
			fmt.Fprintf(out, "  common words:    %d\n", stats.CommonWords)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "ignore the cache and rebuild every document")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print index statistics as JSON")
	return cmd
}

package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
)

func newCorpusGenCmd(g *globalFlags) *cobra.Command {
	var (
		count int
		dir   string
		seed  int64
	)
	cmd := &cobra.Command{
		Use:   "corpusgen",
		Short: "Write synthetic notes into the vault",
		Long: `Corpusgen writes generated_note_NNNNNN_<category>.md files into the vault
root (or --dir below it). Numbering continues after the documents already in
the vault.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be positive")
			}
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			fsv, err := vault.NewFS(cfg.Vault, log)
			if err != nil {
				return err
			}
			existing, err := fsv.List(ctx)
			if err != nil {
				return err
			}
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			start := len(existing) + 1
			paths, err := corpus.Generate(ctx, fsv.Adapter(), dir, start, count, rand.New(rand.NewSource(seed)))
			if err != nil {
				return err
			}
			log.Info("corpus generated", "root", fsv.BaseDir(), "written", len(paths), "first", start)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d notes to %s (total %d)\n", len(paths), fsv.BaseDir(), len(existing)+len(paths))
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1000, "number of notes to write")
	cmd.Flags().StringVar(&dir, "dir", "", "subdirectory of the vault root to write into")
	cmd.Flags().Int64Var(&seed, "seed", 0, "generator seed (0 picks one from the clock)")
	return cmd
}

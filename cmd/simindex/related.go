package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
)

func newRelatedCmd(g *globalFlags) *cobra.Command {
	var (
		limit        int
		useThreshold bool
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "related <document-id>",
		Short: "List documents related to one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("%w: --limit must be positive", apperrors.ErrInvalidInput)
			}
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

			if err := a.index.Initialize(ctx, nil); err != nil {
				return fmt.Errorf("indexing: %w", err)
			}
			id := args[0]
			if a.index.DocumentState(id) != similarity.StateIndexed {
				return fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
			}

			results := a.index.GetSimilarDocuments(id, 0, nil)
			threshold := a.index.SimilarityThreshold()
			shown := make([]similarity.Result, 0, limit)
			for _, r := range results {
				if len(shown) == limit {
					break
				}
				if !useThreshold || r.Similarity >= threshold {
					shown = append(shown, r)
				}
			}

			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(shown)
			}
			out := cmd.OutOrStdout()
			if len(shown) == 0 {
				fmt.Fprintf(out, "No related documents for %s\n", id)
				return nil
			}
			for i, r := range shown {
				fmt.Fprintf(out, "%2d. %.3f  %s\n", i+1, r.Similarity, r.ID)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().BoolVarP(&useThreshold, "threshold", "t", true, "hide results below the recommended similarity threshold")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

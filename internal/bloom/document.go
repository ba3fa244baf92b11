package bloom

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
)

// ExtractOptions bounds the items a DocumentFilter adds per document.
type ExtractOptions struct {
	MaxBigrams    int
	MaxCJKBigrams int
	// ChunkSize is the number of items added between stop checks.
	ChunkSize int
}

func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		MaxBigrams:    2000,
		MaxCJKBigrams: 300,
		ChunkSize:     1000,
	}
}

// DocumentFilter is a Filter built from one document's token stream: its
// distinct tokens, adjacent token bigrams and character n-grams.
type DocumentFilter struct {
	*Filter
	ngram      int
	tokenCount int
}

// NewDocumentFilter builds the filter for tokens. stop, when non-nil, is
// polled every opts.ChunkSize items; ErrStopped is returned once it reports
// true.
func NewDocumentFilter(tokens []string, ngram int, size, hashCount uint, opts ExtractOptions, stop func() bool) (*DocumentFilter, error) {
	if ngram <= 0 {
		return nil, fmt.Errorf("%w: ngram size must be positive", apperrors.ErrInvalidConfig)
	}
	f, err := New(size, hashCount)
	if err != nil {
		return nil, err
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultExtractOptions().ChunkSize
	}
	df := &DocumentFilter{Filter: f, ngram: ngram, tokenCount: len(tokens)}

	added := 0
	add := func(item string) error {
		df.Add(item)
		added++
		if stop != nil && added%opts.ChunkSize == 0 && stop() {
			return apperrors.ErrStopped
		}
		return nil
	}

	seen := make(map[string]struct{}, len(tokens))
	distinct := make([]string, 0, len(tokens))
	cjk := 0
	for _, tok := range tokens {
		if tokenizer.IsCJKToken(tok) {
			cjk++
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		distinct = append(distinct, tok)
		if err := add(tok); err != nil {
			return nil, err
		}
	}

	maxBigrams := opts.MaxBigrams
	if cjk*2 > len(tokens) {
		maxBigrams = opts.MaxCJKBigrams
	}
	bigrams := 0
	for i := 1; i < len(tokens) && bigrams < maxBigrams; i++ {
		if err := add(tokens[i-1] + " " + tokens[i]); err != nil {
			return nil, err
		}
		bigrams++
	}

	for _, tok := range distinct {
		runes := []rune(tok)
		if len(runes) <= ngram {
			continue
		}
		for i := 0; i+ngram <= len(runes); i++ {
			if err := add("#" + string(runes[i:i+ngram])); err != nil {
				return nil, err
			}
		}
	}
	return df, nil
}

// DocumentFilterFromSerialized restores a DocumentFilter for the given ngram
// size.
func DocumentFilterFromSerialized(s Serialized, ngram int) (*DocumentFilter, error) {
	f, err := FromSerialized(s)
	if err != nil {
		return nil, err
	}
	return &DocumentFilter{Filter: f, ngram: ngram}, nil
}

func (d *DocumentFilter) Ngram() int { return d.ngram }

// TokenCount is the number of tokens the filter was built from, or 0 for a
// restored filter.
func (d *DocumentFilter) TokenCount() int { return d.tokenCount }

// Compare returns the similarity of the underlying filters.
func (d *DocumentFilter) Compare(other *DocumentFilter, opts SimilarityOptions) float64 {
	if d == nil || other == nil {
		return 0
	}
	return d.Filter.SimilarityWith(other.Filter, opts)
}

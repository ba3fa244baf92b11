// Package benchmark holds throughput benchmarks for tokenization, filter
// construction and related-document queries.
package benchmark

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/bloom"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
)

func generatedVault(b *testing.B, n int) (*vault.Memory, []string) {
	b.Helper()
	rng := rand.New(rand.NewSource(1))
	v := vault.NewMemory()
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		cat := corpus.Categories[rng.Intn(len(corpus.Categories))]
		id := corpus.FileName(i, cat)
		v.Put(id, corpus.Note(rng, cat, i))
		ids = append(ids, id)
	}
	return v, ids
}

func indexed(b *testing.B, n int, smartThreshold int) (*similarity.Index, []string) {
	b.Helper()
	v, ids := generatedVault(b, n)
	cfg := config.Default()
	cfg.Index.Seed = 1
	cfg.Candidates.SmartThreshold = smartThreshold
	opts := similarity.OptionsFromConfig(cfg)
	opts.Vault = v
	ix, err := similarity.New(opts)
	if err != nil {
		b.Fatal(err)
	}
	if err := ix.Initialize(context.Background(), nil); err != nil {
		b.Fatal(err)
	}
	return ix, ids
}

func BenchmarkDocumentFilter(b *testing.B) {
	tokens := tokenizer.Tokens(sampleTexts["long"])
	opts := bloom.DefaultExtractOptions()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := bloom.NewDocumentFilter(tokens, 3, 2048, 3, opts, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFilterSimilarity(b *testing.B) {
	opts := bloom.DefaultExtractOptions()
	x, err := bloom.NewDocumentFilter(tokenizer.Tokens(sampleTexts["medium"]), 3, 2048, 3, opts, nil)
	if err != nil {
		b.Fatal(err)
	}
	y, err := bloom.NewDocumentFilter(tokenizer.Tokens(sampleTexts["long"]), 3, 2048, 3, opts, nil)
	if err != nil {
		b.Fatal(err)
	}
	sim := bloom.DefaultSimilarityOptions()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = x.Compare(y, sim)
	}
}

func BenchmarkInitialize(b *testing.B) {
	for _, n := range []int{100, 1000} {
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			v, _ := generatedVault(b, n)
			cfg := config.Default()
			opts := similarity.OptionsFromConfig(cfg)
			opts.Vault = v
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				ix, err := similarity.New(opts)
				if err != nil {
					b.Fatal(err)
				}
				if err := ix.Initialize(context.Background(), nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkSimilarDocuments compares scoring every document with word-index
// candidate selection. Queries cycle through the corpus, so once every id has
// been asked for the pair cache answers most comparisons.
func BenchmarkSimilarDocuments(b *testing.B) {
	cases := []struct {
		name  string
		smart int
	}{
		{"all", 0},
		{"smart", 100},
	}
	for _, c := range cases {
		b.Run(c.name, func(b *testing.B) {
			ix, ids := indexed(b, 2000, c.smart)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = ix.GetSimilarDocuments(ids[i%len(ids)], 10, nil)
			}
		})
	}
}

func BenchmarkSimilarDocumentsParallel(b *testing.B) {
	ix, ids := indexed(b, 1000, 100)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_ = ix.GetSimilarDocuments(ids[i%len(ids)], 10, nil)
			i++
		}
	})
}

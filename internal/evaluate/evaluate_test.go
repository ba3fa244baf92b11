package evaluate

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
)

func TestCategory(t *testing.T) {
	cases := map[string]string{
		"generated_note_001001_fiction.md":               "fiction",
		"notes/generated_note_000002_science.md":         "science",
		"note_000001_unknown_book_chapter_16.md":         "literature",
		"note_000003_unknown_book_chapter_conclusion.md": "literature",
		"generated_note_abc_fiction.md":                  "unknown",
		"generated_note_000001_fiction.txt":              "unknown",
		"readme.md":                                      "unknown",
	}
	for in, want := range cases {
		assert.Equal(t, want, Category(in), in)
	}
}

func TestCleanDropsHeadersAndMetadata(t *testing.T) {
	text := "# Title\n\nCategory: Science\nGenerated: File 3\nFrom: somewhere\n## Section 1\n\nBody line one.\nBody line two."
	assert.Equal(t, "Body line one. Body line two.", Clean(text))
}

func TestJaccardIgnoresStopWords(t *testing.T) {
	a := WordSet("The quick brown fox")
	b := WordSet("A quick brown dog")
	assert.InDelta(t, 2.0/4.0, Jaccard(a, b), 1e-9)
	assert.Zero(t, Jaccard(a, map[string]struct{}{}))
	assert.InDelta(t, 1.0, Jaccard(a, a), 1e-9)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{0.1, 0.4, 0.2, 0.3})
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 0.25, s.Mean, 1e-9)
	assert.InDelta(t, 0.25, s.Median, 1e-9)
	assert.InDelta(t, 0.1290994, s.StdDev, 1e-6)
	assert.InDelta(t, 0.1, s.Min, 1e-9)
	assert.InDelta(t, 0.4, s.Max, 1e-9)

	assert.Equal(t, Summary{}, Summarize(nil))
	one := Summarize([]float64{0.7})
	assert.Zero(t, one.StdDev)
	assert.InDelta(t, 0.7, one.Median, 1e-9)
}

func TestBin(t *testing.T) {
	assert.Equal(t, 0, bin(0))
	assert.Equal(t, 0, bin(0.099))
	assert.Equal(t, 1, bin(0.1))
	assert.Equal(t, 9, bin(0.95))
	assert.Equal(t, 9, bin(1))
}

type constScorer float64

func (c constScorer) CalculateSimilarity(string, string) float64 { return float64(c) }

func generated(t *testing.T, n int) *vault.Memory {
	t.Helper()
	ctx := context.Background()
	a := vault.NewMemoryAdapter()
	paths, err := corpus.Generate(ctx, a, "", 1, n, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	v := vault.NewMemory()
	for _, p := range paths {
		data, err := a.Read(ctx, p)
		require.NoError(t, err)
		v.Put(p, string(data))
	}
	return v
}

func TestRunReport(t *testing.T) {
	v := generated(t, 30)
	r, err := Run(context.Background(), constScorer(0.55), v, 100, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, 30, r.Files)
	total := 0
	for _, n := range r.Categories {
		total += n
	}
	assert.Equal(t, 30, total)
	require.Len(t, r.Pairs, 100)
	for _, p := range r.Pairs {
		assert.NotEqual(t, p.A, p.B)
		assert.Equal(t, p.CategoryA == p.CategoryB, p.SameCategory)
	}

	require.Len(t, r.Methods, 2)
	bloom := r.Methods[1]
	assert.Equal(t, MethodBloom, bloom.Name)
	assert.InDelta(t, 0.55, bloom.All.Mean, 1e-9)
	assert.Equal(t, 100, bloom.Histogram[5])
	assert.Len(t, bloom.Top, 5)
	assert.Equal(t, bloom.Same.Count+bloom.Different.Count, bloom.All.Count)

	jac := r.Methods[0]
	for i := 1; i < len(jac.Top); i++ {
		assert.GreaterOrEqual(t, jac.Top[i-1].Similarities[MethodWordJaccard], jac.Top[i].Similarities[MethodWordJaccard])
	}

	var buf bytes.Buffer
	r.WriteText(&buf)
	assert.Contains(t, buf.String(), "Sample size: 100 pairs")
	assert.Contains(t, buf.String(), "WORD_JACCARD")
	assert.Contains(t, buf.String(), "0.5-0.6:  100 pairs (100.0%)")
}

func TestRunTinyVault(t *testing.T) {
	v := vault.NewMemory()
	v.Put("only.md", "alone")
	r, err := Run(context.Background(), constScorer(0), v, 10, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Empty(t, r.Pairs)
	assert.Len(t, r.Methods, 2)
}

func TestSameCategoryScoresHigher(t *testing.T) {
	v := generated(t, 60)
	cfg := config.Default()
	cfg.Index.Seed = 11
	opts := similarity.OptionsFromConfig(cfg)
	opts.Vault = v
	ix, err := similarity.New(opts)
	require.NoError(t, err)
	require.NoError(t, ix.Initialize(context.Background(), nil))

	r, err := Run(context.Background(), ix, v, 400, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	for _, m := range r.Methods {
		require.NotZero(t, m.Same.Count, m.Name)
		require.NotZero(t, m.Different.Count, m.Name)
		assert.Greater(t, m.Same.Mean, m.Different.Mean, m.Name)
	}
}

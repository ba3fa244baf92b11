package wordindex

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
)

func newSelector() *Selector {
	return New(config.Default().Candidates, nil, rand.New(rand.NewSource(42)))
}

func ids(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestGetFastCandidatesRanksByOverlap(t *testing.T) {
	s := newSelector()
	s.AddDocument("doc1", "machine learning deep learning algorithms")
	s.AddDocument("doc2", "machine learning neural networks")
	s.AddDocument("doc3", "cooking recipes kitchen food")
	s.AddDocument("doc4", "deep learning algorithms for machine vision")

	got := s.GetFastCandidates("doc1", 10, 50)
	require.NotEmpty(t, got)
	assert.Equal(t, "doc4", got[0].ID)
	assert.Equal(t, 4, got[0].Score)
	assert.Equal(t, "doc2", got[1].ID)
	assert.NotContains(t, ids(got), "doc1")
	assert.NotContains(t, ids(got), "doc3")
}

func TestGetFastCandidatesNeverReturnsQuery(t *testing.T) {
	s := newSelector()
	for i := 0; i < 30; i++ {
		s.AddDocument(fmt.Sprintf("d%d", i), "shared vocabulary everywhere plus unique"+fmt.Sprint(i))
	}
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("d%d", i)
		assert.NotContains(t, ids(s.GetFastCandidates(id, 100, 5)), id)
	}
}

func TestGetFastCandidatesUnknownQuery(t *testing.T) {
	s := newSelector()
	s.AddDocument("a", "alpha beta gamma")
	got := s.GetFastCandidates("missing", 10, 10)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetFastCandidatesRespectsLimitAndTieOrder(t *testing.T) {
	s := newSelector()
	s.AddDocument("q", "alpha")
	for i := 0; i < 5; i++ {
		s.AddDocument(fmt.Sprintf("c%d", i), "alpha")
	}
	got := s.GetFastCandidates("q", 3, 10)
	assert.Equal(t, []string{"c0", "c1", "c2"}, ids(got))
}

func TestAddDocumentIsIdempotent(t *testing.T) {
	s := newSelector()
	s.AddDocument("a", "alpha beta gamma")
	s.AddDocument("b", "alpha delta")
	s.AddDocument("a", "epsilon zeta")

	assert.Equal(t, 2, s.DocumentCount())
	assert.Empty(t, s.GetFastCandidates("b", 10, 10))

	s.AddDocument("c", "epsilon")
	assert.Equal(t, []string{"c"}, ids(s.GetFastCandidates("a", 10, 10)))
}

func TestRemoveDocumentCleansPostings(t *testing.T) {
	s := newSelector()
	s.AddDocument("a", "alpha beta")
	s.AddDocument("b", "alpha gamma")
	before := s.VocabularySize()

	s.RemoveDocument("a")
	assert.False(t, s.Has("a"))
	assert.Equal(t, 1, s.DocumentCount())
	assert.Equal(t, before-1, s.VocabularySize())
	assert.Empty(t, s.GetFastCandidates("b", 10, 10))

	s.RemoveDocument("never-added")
	assert.Equal(t, 1, s.DocumentCount())
}

func TestFiltersShortAndSymbolTokens(t *testing.T) {
	s := newSelector()
	s.AddTokens("a", []string{"ab", "a-!!", "word", "机"})
	s.AddTokens("b", []string{"ab", "a-!!", "word", "机"})
	got := s.GetFastCandidates("a", 10, 10)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Score)
}

func TestAdaptiveStopwordsFreeze(t *testing.T) {
	cfg := config.Default().Candidates
	cfg.AdaptiveStopwordMinDocs = 8
	s := New(cfg, nil, rand.New(rand.NewSource(1)))
	for i := 0; i < 8; i++ {
		s.AddTokens(fmt.Sprintf("d%d", i), []string{"common", fmt.Sprintf("rare%d", i/2)})
	}
	assert.Equal(t, []string{"common"}, s.CommonWords())

	got := s.GetFastCandidates("d0", 10, 10)
	assert.Equal(t, []string{"d1"}, ids(got))

	restored := New(cfg, nil, nil)
	restored.SetCommonWords([]string{"common"})
	restored.AddTokens("x", []string{"common", "other"})
	restored.AddTokens("y", []string{"common"})
	assert.Empty(t, restored.GetFastCandidates("x", 10, 10))
}

func TestNoiseSuppressionSkipsSingletonTokens(t *testing.T) {
	cfg := config.Default().Candidates
	cfg.NoiseMinDocs = 3
	cfg.AdaptiveStopwordMinDocs = 0
	cfg.MaxDocFreqRatio = 1
	s := New(cfg, nil, rand.New(rand.NewSource(3)))
	s.AddTokens("q", []string{"solo", "shared"})
	s.AddTokens("a", []string{"shared"})
	s.AddTokens("b", []string{"other"})

	for i := 0; i < 10; i++ {
		got := s.GetFastCandidates("q", 10, 1)
		assert.Equal(t, []string{"a"}, ids(got))
	}
}

func TestReset(t *testing.T) {
	s := newSelector()
	s.AddDocument("a", "alpha beta")
	s.Reset()
	assert.Zero(t, s.DocumentCount())
	assert.Zero(t, s.VocabularySize())
	assert.False(t, s.Has("a"))
}

// Package adaptive observes corpus statistics and recommends bloom filter
// parameters sized for the documents actually being indexed.
package adaptive

import (
	"math"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/bloom"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/tokenizer"
)

const (
	minBloomSize = 256
	maxBloomSize = 65536
	minHashes    = 1
	maxHashes    = 10

	baseThreshold       = 0.3
	smallCorpusDocs     = 100
	shortDocumentTokens = 50
	smallThreshold      = 0.2
	largeVaultDocs      = 5000
	largeThreshold      = 0.25
)

// Config controls when recommendations kick in and settle.
type Config struct {
	// MinDocuments is the number of analyzed documents before anything but
	// the defaults is recommended.
	MinDocuments int
	// StableAfter is the number of documents after which recommendations
	// are frozen.
	StableAfter int
	// NgramSize is used to estimate how many character n-grams each token
	// contributes.
	NgramSize int
	// CorpusSize, when set, is the expected total number of documents and
	// overrides the analyzed count for threshold selection.
	CorpusSize int
}

func DefaultConfig() Config {
	return Config{MinDocuments: 10, StableAfter: 30, NgramSize: 3}
}

// Parameters is a filter configuration recommendation.
type Parameters struct {
	BloomSize           uint
	HashFunctionCount   uint
	SimilarityThreshold float64
	Stable              bool
}

func DefaultParameters() Parameters {
	return Parameters{BloomSize: 2048, HashFunctionCount: 3, SimilarityThreshold: baseThreshold}
}

// Stats summarizes what the calculator has seen.
type Stats struct {
	Documents       int
	AverageTokens   float64
	AverageDistinct float64
	VocabularySize  int
}

// Calculator is safe for concurrent use.
type Calculator struct {
	cfg Config
	tok *tokenizer.Tokenizer

	mu            sync.Mutex
	docs          int
	totalTokens   int
	totalDistinct int
	totalRunes    int
	vocabulary    map[string]int
	vocabSize     int
	frozen        *Parameters
}

func New(cfg Config, tok *tokenizer.Tokenizer) *Calculator {
	def := DefaultConfig()
	if cfg.MinDocuments <= 0 {
		cfg.MinDocuments = def.MinDocuments
	}
	if cfg.StableAfter < cfg.MinDocuments {
		cfg.StableAfter = max(def.StableAfter, cfg.MinDocuments)
	}
	if cfg.NgramSize <= 0 {
		cfg.NgramSize = def.NgramSize
	}
	if tok == nil {
		tok = tokenizer.New(tokenizer.DefaultConfig())
	}
	return &Calculator{cfg: cfg, tok: tok, vocabulary: make(map[string]int)}
}

// AnalyzeDocument tokenizes text and records its statistics.
func (c *Calculator) AnalyzeDocument(text string) {
	c.AnalyzeTokens(c.tok.Tokens(text))
}

// AnalyzeTokens records the statistics of one tokenized document.
func (c *Calculator) AnalyzeTokens(tokens []string) {
	distinct := make(map[string]struct{}, len(tokens))
	runes := 0
	for _, t := range tokens {
		if _, ok := distinct[t]; ok {
			continue
		}
		distinct[t] = struct{}{}
		runes += len([]rune(t))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs++
	c.totalTokens += len(tokens)
	c.totalDistinct += len(distinct)
	c.totalRunes += runes
	for t := range distinct {
		if c.vocabulary[t] == 0 {
			c.vocabSize++
		}
		c.vocabulary[t]++
	}
}

// GenerateRecommendedParameters sizes a filter for the average document at
// the given false-positive rate. Before MinDocuments documents have been
// analyzed it returns DefaultParameters.
func (c *Calculator) GenerateRecommendedParameters(falsePositiveRate float64) Parameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen != nil {
		return *c.frozen
	}
	if c.docs < c.cfg.MinDocuments {
		return DefaultParameters()
	}

	meanDistinct := float64(c.totalDistinct) / float64(c.docs)
	meanTokens := float64(c.totalTokens) / float64(c.docs)
	meanRunes := 0.0
	if c.totalDistinct > 0 {
		meanRunes = float64(c.totalRunes) / float64(c.totalDistinct)
	}
	// each token contributes itself, one bigram and its character n-grams
	ngramFactor := math.Max(0, meanRunes-float64(c.cfg.NgramSize)+1)
	expected := uint(math.Ceil(meanDistinct*(1+ngramFactor) + meanTokens))
	if expected == 0 {
		expected = 1
	}

	size := clamp(bloom.OptimalSize(expected, falsePositiveRate), minBloomSize, maxBloomSize)
	hashes := clamp(bloom.OptimalHashCount(size, expected), minHashes, maxHashes)

	corpus := c.docs
	if c.cfg.CorpusSize > 0 {
		corpus = c.cfg.CorpusSize
	}
	threshold := baseThreshold
	switch {
	case corpus > largeVaultDocs:
		threshold = largeThreshold
	case corpus < smallCorpusDocs, meanTokens < shortDocumentTokens:
		threshold = smallThreshold
	}

	p := Parameters{BloomSize: size, HashFunctionCount: hashes, SimilarityThreshold: threshold}
	if c.docs >= c.cfg.StableAfter {
		p.Stable = true
		c.frozen = &p
	}
	return p
}

// ClearFrequencies drops the per-token frequency map while keeping the
// running means and the vocabulary count.
func (c *Calculator) ClearFrequencies() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vocabulary = make(map[string]int)
}

// Reset forgets everything, including a frozen recommendation.
func (c *Calculator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs, c.totalTokens, c.totalDistinct, c.totalRunes, c.vocabSize = 0, 0, 0, 0, 0
	c.vocabulary = make(map[string]int)
	c.frozen = nil
}

func (c *Calculator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Documents: c.docs, VocabularySize: c.vocabSize}
	if c.docs > 0 {
		s.AverageTokens = float64(c.totalTokens) / float64(c.docs)
		s.AverageDistinct = float64(c.totalDistinct) / float64(c.docs)
	}
	return s
}

func clamp(v, lo, hi uint) uint {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

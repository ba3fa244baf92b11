// Package similarity is the document similarity index. It builds one bloom
// filter per document and ngram size, keeps a word index for fast candidate
// selection and persists its filters through the persistent cache so a
// restart only re-indexes what changed.
package similarity

import (
	"cmp"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/adaptive"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/bloom"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/metrics"
)

// State is the indexing lifecycle of one document.
type State int

const (
	StateUnindexed State = iota
	StateIndexing
	StateIndexed
)

func (s State) String() string {
	switch s {
	case StateUnindexed:
		return "unindexed"
	case StateIndexing:
		return "indexing"
	case StateIndexed:
		return "indexed"
	default:
		return "unknown"
	}
}

// ProgressFunc receives the number of documents processed so far and the
// total. processed never decreases within one run.
type ProgressFunc func(processed, total int)

// Result is one similar document.
type Result struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// Options configures an Index. Zero-valued config sections fall back to
// config.Default.
type Options struct {
	Index      config.IndexConfig
	Bloom      config.BloomConfig
	Tokenizer  config.TokenizerConfig
	Candidates config.CandidateConfig
	Memory     config.MemoryConfig

	Vault vault.Vault
	// Cache is optional; without it every Initialize is a full scan.
	Cache   *cache.PersistentCache
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Rand drives candidate sampling. Nil seeds from Index.Seed, or the
	// clock when that is zero.
	Rand *rand.Rand
	Now  func() time.Time
	// OnComplete runs after every successful Initialize or ForceReindex.
	OnComplete func(RunSummary)
}

// RunSummary describes a completed indexing run.
type RunSummary struct {
	RunID     string
	Op        string
	Documents int
	Reindexed int
	FromCache bool
	Duration  time.Duration
}

// OptionsFromConfig copies the index related sections of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Index:      cfg.Index,
		Bloom:      cfg.Bloom,
		Tokenizer:  cfg.Tokenizer,
		Candidates: cfg.Candidates,
		Memory:     cfg.Memory,
	}
}

// Index is safe for concurrent use. Initialize and ForceReindex are
// serialized; queries run against the current state generation.
type Index struct {
	idx   config.IndexConfig
	bloom config.BloomConfig
	cand  config.CandidateConfig
	mem   config.MemoryConfig

	tok     *tokenizer.Tokenizer
	vault   vault.Vault
	cache   *cache.PersistentCache
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	simOpts bloom.SimilarityOptions
	extract bloom.ExtractOptions

	rngMu sync.Mutex
	rng   *rand.Rand

	cur     atomic.Pointer[state]
	pairs   *pairCache
	version atomic.Uint64

	runMu       sync.Mutex
	stopped     atomic.Bool
	initialized atomic.Bool

	// saveMu orders snapshots with their writes so an older snapshot never
	// lands after a newer one.
	saveMu sync.Mutex

	heapInUse  func() uint64
	onComplete func(RunSummary)
}

// New validates the configuration and returns an empty index. Inconsistent
// bloom settings fail here rather than producing wrong similarities later.
func New(opts Options) (*Index, error) {
	if opts.Vault == nil {
		return nil, fmt.Errorf("%w: vault is required", apperrors.ErrInvalidConfig)
	}
	def := config.Default()
	cfg := *def
	if opts.Index != (config.IndexConfig{}) {
		cfg.Index = opts.Index
	}
	if len(opts.Bloom.NgramSizes) > 0 {
		cfg.Bloom = opts.Bloom
	}
	if opts.Tokenizer != (config.TokenizerConfig{}) {
		cfg.Tokenizer = opts.Tokenizer
	}
	if opts.Candidates != (config.CandidateConfig{}) {
		cfg.Candidates = opts.Candidates
	}
	if opts.Memory != (config.MemoryConfig{}) {
		cfg.Memory = opts.Memory
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rng := opts.Rand
	if rng == nil {
		seed := cfg.Index.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}
	if cfg.Index.Workers <= 0 {
		cfg.Index.Workers = runtime.NumCPU()
	}

	simOpts := bloom.DefaultSimilarityOptions()
	if cfg.Bloom.MinSetBits > 0 {
		simOpts.MinSetBits = uint(cfg.Bloom.MinSetBits)
	}
	if cfg.Bloom.SaturationThreshold > 0 {
		simOpts.SaturationThreshold = cfg.Bloom.SaturationThreshold
	}
	if cfg.Bloom.SaturationExponent > 0 {
		simOpts.SaturationExponent = cfg.Bloom.SaturationExponent
	}
	extract := bloom.DefaultExtractOptions()
	if cfg.Bloom.MaxBigrams > 0 {
		extract.MaxBigrams = cfg.Bloom.MaxBigrams
	}
	if cfg.Bloom.MaxCJKBigrams > 0 {
		extract.MaxCJKBigrams = cfg.Bloom.MaxCJKBigrams
	}
	if cfg.Bloom.ChunkSize > 0 {
		extract.ChunkSize = cfg.Bloom.ChunkSize
	}

	ix := &Index{
		idx:   cfg.Index,
		bloom: cfg.Bloom,
		cand:  cfg.Candidates,
		mem:   cfg.Memory,
		tok: tokenizer.New(tokenizer.Config{
			MinTokenLength: cfg.Tokenizer.MinTokenLength,
			Stemmer:        tokenizer.Stemmer(cfg.Tokenizer.Stemmer),
		}),
		vault:     opts.Vault,
		cache:     opts.Cache,
		logger:    logger.With("component", "similarity-index"),
		metrics:   opts.Metrics,
		now:       now,
		simOpts:   simOpts,
		extract:   extract,
		rng:       rng,
		pairs:     newPairCache(cfg.Index.MaxPairCacheSize, cfg.Index.PairCacheTTL, opts.Metrics),
		heapInUse: readHeapInUse,

		onComplete: opts.OnComplete,
	}
	ix.cur.Store(ix.newState())
	return ix, nil
}

func (ix *Index) newState() *state {
	ac := adaptive.DefaultConfig()
	ac.NgramSize = ix.bloom.NgramSizes[0]
	return newState(layoutFromConfig(ix.bloom), ix.cand, ix.tok, ix.childRand(), ac)
}

// childRand derives an independent source so components never share one
// *rand.Rand across locks.
func (ix *Index) childRand() *rand.Rand {
	ix.rngMu.Lock()
	defer ix.rngMu.Unlock()
	return rand.New(rand.NewSource(ix.rng.Int63()))
}

func (ix *Index) intn(n int) int {
	ix.rngMu.Lock()
	defer ix.rngMu.Unlock()
	return ix.rng.Intn(n)
}

func (ix *Index) state() *state { return ix.cur.Load() }

// Stop asks a running Initialize or ForceReindex to return at its next
// check. A Stop issued while no run is in progress applies to the next run.
// Every run clears the request when it returns. Documents indexed so far
// stay queryable.
func (ix *Index) Stop() {
	if !ix.stopped.Swap(true) {
		ix.logger.Info("stop requested")
	}
}

// IsInitialized reports whether an Initialize or ForceReindex has completed.
func (ix *Index) IsInitialized() bool { return ix.initialized.Load() }

func (ix *Index) DocumentCount() int { return ix.state().len() }

func (ix *Index) DocumentState(id string) State { return ix.state().documentState(id) }

// Dirty reports whether the index changed since it was last saved or loaded.
func (ix *Index) Dirty() bool { return ix.state().dirty() }

// CommonWords returns the adaptive stop-words of the word index.
func (ix *Index) CommonWords() []string { return ix.state().words.CommonWords() }

// Tokenizer returns the tokenizer documents are indexed with.
func (ix *Index) Tokenizer() *tokenizer.Tokenizer { return ix.tok }

// Stats describes the current index.
type Stats struct {
	Documents           int     `json:"documents"`
	Indexing            int     `json:"indexing"`
	Initialized         bool    `json:"initialized"`
	Dirty               bool    `json:"dirty"`
	WordIndexDocuments  int     `json:"wordIndexDocuments"`
	Vocabulary          int     `json:"vocabulary"`
	CommonWords         int     `json:"commonWords"`
	AverageTokens       float64 `json:"averageTokens"`
	NgramSizes          []int   `json:"ngramSizes"`
	BloomSizes          []int   `json:"bloomSizes"`
	HashFunctions       []int   `json:"hashFunctions"`
	SimilarityThreshold float64 `json:"similarityThreshold"`
	PairCacheEntries    int     `json:"pairCacheEntries"`
	PairCacheHits       int64   `json:"pairCacheHits"`
	PairCacheMisses     int64   `json:"pairCacheMisses"`
}

func (ix *Index) Stats() Stats {
	st := ix.state()
	p := st.currentLayout().params()
	as := st.adaptive.Stats()
	return Stats{
		Documents:           st.len(),
		Indexing:            st.indexingCount(),
		Initialized:         ix.IsInitialized(),
		Dirty:               st.dirty(),
		WordIndexDocuments:  st.words.DocumentCount(),
		Vocabulary:          st.words.VocabularySize(),
		CommonWords:         len(st.words.CommonWords()),
		AverageTokens:       as.AverageTokens,
		NgramSizes:          p.NgramSizes,
		BloomSizes:          p.BloomSizes,
		HashFunctions:       p.HashFunctions,
		SimilarityThreshold: p.SimilarityThreshold,
		PairCacheEntries:    ix.pairs.len(),
		PairCacheHits:       ix.pairs.hits.Load(),
		PairCacheMisses:     ix.pairs.misses.Load(),
	}
}

// SimilarityThreshold is the threshold callers should filter results with.
// The index itself never applies it.
func (ix *Index) SimilarityThreshold() float64 {
	return ix.state().currentLayout().threshold
}

// CalculateSimilarity returns the mean per-ngram filter similarity of two
// indexed documents, or 0 when either is unknown.
func (ix *Index) CalculateSimilarity(id1, id2 string) float64 {
	st := ix.state()
	a, ok := st.get(id1)
	if !ok {
		return 0
	}
	b, ok := st.get(id2)
	if !ok {
		return 0
	}
	return ix.similarity(st.currentLayout(), a, b)
}

func (ix *Index) similarity(l layout, a, b *entry) float64 {
	if len(l.ngrams) == 0 {
		return 0
	}
	key := pairKey(a.id, a.version, b.id, b.version)
	if v, ok := ix.pairs.get(key); ok {
		return v
	}
	var sum float64
	for _, n := range l.ngrams {
		sum += a.filters[n].Compare(b.filters[n], ix.simOpts)
	}
	v := sum / float64(len(l.ngrams))
	ix.pairs.put(key, v)
	return v
}

// GetCandidateFiles returns the documents GetSimilarDocuments would score
// for id when no explicit candidates are given.
func (ix *Index) GetCandidateFiles(id string) []string {
	st := ix.state()
	if _, ok := st.get(id); !ok {
		return []string{}
	}
	ids, _ := ix.candidates(st, id)
	return ids
}

func (ix *Index) useSmart(st *state) bool {
	return ix.cand.SmartThreshold > 0 && st.len() > ix.cand.SmartThreshold
}

func (ix *Index) candidates(st *state, id string) ([]string, string) {
	if ix.useSmart(st) {
		return ix.smartCandidates(st, id, ix.cand.MaxCandidates), "smart"
	}
	entries := st.entries()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.id != id {
			out = append(out, e.id)
		}
	}
	return out, "all"
}

// GetSimilarDocuments scores id against candidateIDs, or against the
// candidates the index picks when candidateIDs is nil. Every non-zero
// similarity is returned, highest first with ties in insertion order. A
// limit <= 0 returns them all. No threshold is applied.
func (ix *Index) GetSimilarDocuments(id string, limit int, candidateIDs []string) []Result {
	start := time.Now()
	st := ix.state()
	q, ok := st.get(id)
	if !ok {
		return []Result{}
	}

	strategy := "explicit"
	ids := candidateIDs
	if ids == nil {
		ids, strategy = ix.candidates(st, id)
	}
	seen := make(map[string]struct{}, len(ids))
	cands := make([]*entry, 0, len(ids))
	for _, cid := range ids {
		if cid == id {
			continue
		}
		if _, dup := seen[cid]; dup {
			continue
		}
		seen[cid] = struct{}{}
		if e, ok := st.get(cid); ok {
			cands = append(cands, e)
		}
	}
	slices.SortFunc(cands, func(a, b *entry) int { return cmp.Compare(a.seq, b.seq) })

	l := st.currentLayout()
	results := make([]Result, 0, len(cands))
	for _, c := range cands {
		if s := ix.similarity(l, q, c); s > 0 {
			results = append(results, Result{ID: c.id, Similarity: s})
		}
	}
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	if ix.metrics != nil {
		ix.metrics.SimilarityQueries.WithLabelValues(strategy).Inc()
		ix.metrics.CandidatesCount.WithLabelValues(strategy).Observe(float64(len(cands)))
		ix.metrics.SimilarityLatency.Observe(time.Since(start).Seconds())
	}
	ix.logger.Debug("similar documents",
		"id", id,
		"strategy", strategy,
		"candidates", len(cands),
		"results", len(results),
	)
	return results
}

func readHeapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse
}

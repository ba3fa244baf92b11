package similarity

import (
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/adaptive"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/bloom"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/wordindex"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
)

// layout is the filter configuration, one bloom size and hash count per
// ngram size.
type layout struct {
	ngrams    []int
	sizes     []uint
	hashes    []uint
	threshold float64
}

func layoutFromConfig(b config.BloomConfig) layout {
	l := layout{ngrams: slices.Clone(b.NgramSizes), threshold: b.SimilarityThreshold}
	for i := range b.NgramSizes {
		l.sizes = append(l.sizes, uint(b.BloomSizes[i]))
		l.hashes = append(l.hashes, uint(b.HashFunctions[i]))
	}
	return l
}

func layoutFromParams(p cache.Params) layout {
	l := layout{ngrams: slices.Clone(p.NgramSizes), threshold: p.SimilarityThreshold}
	for _, n := range p.NgramSizes {
		l.sizes = append(l.sizes, uint(p.BloomSize(n)))
		l.hashes = append(l.hashes, uint(p.HashCount(n)))
	}
	return l
}

// withRecommendation uses one recommended size and hash count for every
// ngram size.
func (l layout) withRecommendation(p adaptive.Parameters) layout {
	out := layout{ngrams: slices.Clone(l.ngrams), threshold: p.SimilarityThreshold}
	for range l.ngrams {
		out.sizes = append(out.sizes, p.BloomSize)
		out.hashes = append(out.hashes, p.HashFunctionCount)
	}
	return out
}

func (l layout) params() cache.Params {
	p := cache.Params{NgramSizes: slices.Clone(l.ngrams), SimilarityThreshold: l.threshold}
	for i := range l.ngrams {
		p.BloomSizes = append(p.BloomSizes, int(l.sizes[i]))
		p.HashFunctions = append(p.HashFunctions, int(l.hashes[i]))
	}
	return p
}

// entry is immutable once stored; put replaces it.
type entry struct {
	id      string
	seq     uint64
	version uint64
	modTime time.Time
	filters map[int]*bloom.DocumentFilter
}

// state is one generation of the index. ForceReindex builds a fresh state and
// swaps it in, so readers of the previous generation never see it half
// cleared.
type state struct {
	mu       sync.RWMutex
	layout   layout
	docs     map[string]*entry
	order    []string
	indexing map[string]struct{}
	nextSeq  uint64

	words    *wordindex.Selector
	adaptive *adaptive.Calculator

	// gen counts mutations; savedGen is the generation last persisted.
	gen      uint64
	savedGen uint64

	sinceReset int
}

func newState(l layout, cc config.CandidateConfig, tok *tokenizer.Tokenizer, rng *rand.Rand, ac adaptive.Config) *state {
	return &state{
		layout:   l,
		docs:     make(map[string]*entry),
		indexing: make(map[string]struct{}),
		words:    wordindex.New(cc, tok, rng),
		adaptive: adaptive.New(ac, tok),
	}
}

func (s *state) setLayout(l layout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layout = l
}

func (s *state) currentLayout() layout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout
}

func (s *state) markIndexing(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.indexing[id] = struct{}{}
	}
}

func (s *state) unmarkIndexing(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexing, id)
}

// put inserts or replaces id. A replaced document keeps its insertion
// position.
func (s *state) put(id string, modTime time.Time, filters map[int]*bloom.DocumentFilter, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexing, id)
	e := &entry{id: id, version: version, modTime: modTime, filters: filters}
	if old, ok := s.docs[id]; ok {
		e.seq = old.seq
	} else {
		e.seq = s.nextSeq
		s.nextSeq++
		s.order = append(s.order, id)
	}
	s.docs[id] = e
	s.gen++
}

func (s *state) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexing, id)
	if _, ok := s.docs[id]; !ok {
		return false
	}
	delete(s.docs, id)
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
	s.gen++
	return true
}

func (s *state) get(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[id]
	return e, ok
}

func (s *state) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// entries returns the documents in insertion order.
func (s *state) entries() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	return out
}

func (s *state) documentState(id string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.indexing[id]; ok {
		return StateIndexing
	}
	if _, ok := s.docs[id]; ok {
		return StateIndexed
	}
	return StateUnindexed
}

func (s *state) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
}

func (s *state) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

func (s *state) indexingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.indexing)
}

// countProcessed adds n to the documents processed since the last frequency
// reset and reports whether a reset is due.
func (s *state) countProcessed(n, every int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinceReset += n
	if every <= 0 || s.sinceReset < every {
		return false
	}
	s.sinceReset = 0
	return true
}

func (s *state) dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen != s.savedGen
}

func (s *state) markSaved(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen > s.savedGen {
		s.savedGen = gen
	}
}

// clear drops every document, the word index and the adaptive statistics.
func (s *state) clear() {
	s.mu.Lock()
	s.docs = make(map[string]*entry)
	s.order = nil
	s.indexing = make(map[string]struct{})
	s.gen++
	s.sinceReset = 0
	s.mu.Unlock()
	s.words.Reset()
	s.adaptive.Reset()
}

// snapshot captures what the persistent cache stores, along with the
// generation it reflects.
func (s *state) snapshot() (cache.Snapshot, uint64) {
	s.mu.RLock()
	l := s.layout
	gen := s.gen
	rec := cache.Record{
		Params:  l.params(),
		Entries: make(map[string]cache.Entry, len(s.docs)),
	}
	for id, e := range s.docs {
		ce := cache.Entry{NgramSizes: slices.Clone(l.ngrams), Blooms: make(map[int][]uint32, len(e.filters)), ModTime: e.modTime}
		for n, f := range e.filters {
			ce.Blooms[n] = f.Serialize().Bits
		}
		rec.Entries[id] = ce
	}
	dirty := s.gen != s.savedGen
	s.mu.RUnlock()

	st := s.adaptive.Stats()
	rec.Stats = cache.Stats{
		DocumentCount:  len(rec.Entries),
		AverageTokens:  st.AverageTokens,
		VocabularySize: max(st.VocabularySize, s.words.VocabularySize()),
	}
	rec.CommonWords = s.words.CommonWords()
	return cache.Snapshot{Record: rec, Dirty: dirty}, gen
}

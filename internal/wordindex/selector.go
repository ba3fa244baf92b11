// Package wordindex maintains an inverted index from tokens to documents and
// answers fast, sampled candidate queries against it.
package wordindex

import (
	"math/rand"
	"sort"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
)

// dynamicFilterMinDocs is the corpus size from which tokens are checked
// against the document-frequency ceiling while being added.
const dynamicFilterMinDocs = 10

// Candidate is a document sharing sampled tokens with a query document.
type Candidate struct {
	ID    string
	Score int
}

// Selector is the word-based candidate selector. Postings are roaring bitmaps
// over internal document ordinals; ordinals follow first insertion order and
// are never reused.
type Selector struct {
	cfg config.CandidateConfig
	tok *tokenizer.Tokenizer

	mu       sync.RWMutex
	ordinals map[string]uint32
	ids      []string
	postings map[string]*roaring.Bitmap
	forward  map[uint32][]string
	docs     int

	stopwords map[string]struct{}
	frozen    bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an empty selector. A nil tokenizer uses the default one and a
// nil rng is seeded with 1.
func New(cfg config.CandidateConfig, tok *tokenizer.Tokenizer, rng *rand.Rand) *Selector {
	if tok == nil {
		tok = tokenizer.New(tokenizer.DefaultConfig())
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	s := &Selector{cfg: cfg, tok: tok, rng: rng}
	s.reset()
	return s
}

func (s *Selector) reset() {
	s.ordinals = make(map[string]uint32)
	s.ids = nil
	s.postings = make(map[string]*roaring.Bitmap)
	s.forward = make(map[uint32][]string)
	s.docs = 0
	s.stopwords = make(map[string]struct{})
	s.frozen = false
}

// Reset drops every document and the adaptive stop-words.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// AddDocument tokenizes text and indexes the result under id.
func (s *Selector) AddDocument(id, text string) {
	s.AddTokens(id, s.tok.Tokens(text))
}

// AddTokens indexes already-tokenized text under id. Adding an id that is
// already present replaces its previous entry.
func (s *Selector) AddTokens(id string, tokens []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ord, known := s.ordinals[id]
	if known {
		s.removeLocked(ord)
	} else {
		ord = uint32(len(s.ids))
		s.ordinals[id] = ord
		s.ids = append(s.ids, id)
	}

	seen := make(map[string]struct{}, len(tokens))
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if !s.acceptLocked(tok) {
			continue
		}
		kept = append(kept, tok)
	}

	for _, tok := range kept {
		bm, ok := s.postings[tok]
		if !ok {
			bm = roaring.New()
			s.postings[tok] = bm
		}
		bm.Add(ord)
	}
	s.forward[ord] = kept
	s.docs++

	if !s.frozen && s.cfg.AdaptiveStopwordMinDocs > 0 && s.docs >= s.cfg.AdaptiveStopwordMinDocs {
		s.freezeStopwordsLocked()
	}
}

func (s *Selector) acceptLocked(tok string) bool {
	if !tokenizer.IsCJKToken(tok) && utf8.RuneCountInString(tok) < s.cfg.MinWordLength {
		return false
	}
	if alnumRatio(tok) < 0.5 {
		return false
	}
	if _, stop := s.stopwords[tok]; stop {
		return false
	}
	if s.docs >= dynamicFilterMinDocs && s.cfg.MaxDocFreqRatio > 0 {
		if bm, ok := s.postings[tok]; ok {
			if float64(bm.GetCardinality())/float64(s.docs) > s.cfg.MaxDocFreqRatio {
				return false
			}
		}
	}
	return true
}

// freezeStopwordsLocked computes the adaptive stop-word set once and prunes
// those tokens from every posting and forward entry.
func (s *Selector) freezeStopwordsLocked() {
	type df struct {
		token string
		count uint64
	}
	var common []df
	if s.cfg.MaxDocFreqRatio <= 0 {
		s.applyStopwordsLocked(nil)
		return
	}
	for tok, bm := range s.postings {
		c := bm.GetCardinality()
		if float64(c)/float64(s.docs) > s.cfg.MaxDocFreqRatio {
			common = append(common, df{tok, c})
		}
	}
	sort.Slice(common, func(i, j int) bool {
		if common[i].count != common[j].count {
			return common[i].count > common[j].count
		}
		return common[i].token < common[j].token
	})
	if limit := s.cfg.MaxAdaptiveStopwords; limit > 0 && len(common) > limit {
		common = common[:limit]
	}
	words := make([]string, len(common))
	for i, c := range common {
		words[i] = c.token
	}
	s.applyStopwordsLocked(words)
}

func (s *Selector) applyStopwordsLocked(words []string) {
	s.frozen = true
	if len(words) == 0 {
		return
	}
	for _, w := range words {
		s.stopwords[w] = struct{}{}
		delete(s.postings, w)
	}
	for ord, toks := range s.forward {
		kept := toks[:0]
		for _, tok := range toks {
			if _, stop := s.stopwords[tok]; !stop {
				kept = append(kept, tok)
			}
		}
		s.forward[ord] = kept
	}
}

// CommonWords returns the frozen adaptive stop-words, sorted.
func (s *Selector) CommonWords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	words := make([]string, 0, len(s.stopwords))
	for w := range s.stopwords {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// SetCommonWords installs a previously computed stop-word set and freezes it.
func (s *Selector) SetCommonWords(words []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyStopwordsLocked(words)
}

// RemoveDocument drops id from every posting it appears in. Unknown ids are
// ignored.
func (s *Selector) RemoveDocument(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ord, ok := s.ordinals[id]
	if !ok {
		return
	}
	s.removeLocked(ord)
	delete(s.ordinals, id)
	s.ids[ord] = ""
}

func (s *Selector) removeLocked(ord uint32) {
	toks, ok := s.forward[ord]
	if !ok {
		return
	}
	for _, tok := range toks {
		bm, ok := s.postings[tok]
		if !ok {
			continue
		}
		bm.Remove(ord)
		if bm.IsEmpty() {
			delete(s.postings, tok)
		}
	}
	delete(s.forward, ord)
	s.docs--
}

func (s *Selector) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ordinals[id]
	return ok
}

func (s *Selector) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs
}

func (s *Selector) VocabularySize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.postings)
}

// GetFastCandidates samples up to numSampleWords of queryID's tokens, unions
// their postings and returns the maxCandidates documents sharing the most
// sampled tokens, ties in insertion order. The query itself is never
// returned; an unknown query yields an empty slice.
func (s *Selector) GetFastCandidates(queryID string, maxCandidates, numSampleWords int) []Candidate {
	if maxCandidates <= 0 || numSampleWords <= 0 {
		return []Candidate{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ord, ok := s.ordinals[queryID]
	if !ok {
		return []Candidate{}
	}
	toks := s.forward[ord]
	if len(toks) == 0 {
		return []Candidate{}
	}

	eligible := make([]string, 0, len(toks))
	suppressNoise := s.cfg.NoiseMinDocs > 0 && s.docs >= s.cfg.NoiseMinDocs
	for _, tok := range toks {
		bm, ok := s.postings[tok]
		if !ok {
			continue
		}
		if suppressNoise && bm.GetCardinality() <= 1 {
			continue
		}
		eligible = append(eligible, tok)
	}

	sampled := s.sample(eligible, numSampleWords)
	scores := make(map[uint32]int)
	for _, tok := range sampled {
		s.postings[tok].Iterate(func(other uint32) bool {
			if other != ord {
				scores[other]++
			}
			return true
		})
	}
	return s.topK(scores, maxCandidates)
}

// sample picks up to n tokens uniformly at random without replacement.
func (s *Selector) sample(tokens []string, n int) []string {
	if len(tokens) <= n {
		return tokens
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	for i := 0; i < n; i++ {
		j := i + s.rng.Intn(len(tokens)-i)
		tokens[i], tokens[j] = tokens[j], tokens[i]
	}
	return tokens[:n]
}

type scored struct {
	ord   uint32
	score int
}

// worseFirst orders the heap so the weakest candidate sits on top.
func worseFirst(a, b any) int {
	x, y := a.(scored), b.(scored)
	switch {
	case x.score != y.score:
		if x.score < y.score {
			return -1
		}
		return 1
	case x.ord > y.ord:
		return -1
	case x.ord < y.ord:
		return 1
	}
	return 0
}

func (s *Selector) topK(scores map[uint32]int, k int) []Candidate {
	heap := binaryheap.NewWith(worseFirst)
	for ord, score := range scores {
		heap.Push(scored{ord: ord, score: score})
		if heap.Size() > k {
			heap.Pop()
		}
	}
	out := make([]Candidate, heap.Size())
	for i := len(out) - 1; i >= 0; i-- {
		v, _ := heap.Pop()
		c := v.(scored)
		out[i] = Candidate{ID: s.ids[c.ord], Score: c.score}
	}
	return out
}

func alnumRatio(tok string) float64 {
	total, alnum := 0, 0
	for _, r := range tok {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(alnum) / float64(total)
}

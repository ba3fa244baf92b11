package similarity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/adaptive"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/bloom"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/tracing"
)

// Initialize loads the persistent cache, reconciles it with the vault and
// indexes every document that is missing from the cache or modified since.
// A second call after success is a no-op; use ForceReindex to rebuild.
// When stopped it returns nil and IsInitialized stays false.
func (ix *Index) Initialize(ctx context.Context, progress ProgressFunc) error {
	ix.runMu.Lock()
	defer ix.runMu.Unlock()
	defer ix.stopped.Store(false)
	if ix.initialized.Load() {
		return nil
	}
	done, err := ix.run(ctx, ix.state(), progress, "initialize", true)
	if err != nil || !done {
		return err
	}
	ix.initialized.Store(true)
	return nil
}

// ForceReindex rebuilds the index from the vault without the cache. The new
// state replaces the current one only once it is complete, so queries keep
// answering from the previous index meanwhile. When stopped it returns nil
// and the previous index stays in place.
func (ix *Index) ForceReindex(ctx context.Context, progress ProgressFunc) error {
	ix.runMu.Lock()
	defer ix.runMu.Unlock()
	defer ix.stopped.Store(false)
	st := ix.newState()
	done, err := ix.run(ctx, st, progress, "reindex", false)
	if err != nil || !done {
		return err
	}
	ix.cur.Store(st)
	ix.pairs.purge()
	ix.initialized.Store(true)
	if ix.metrics != nil {
		ix.metrics.IndexedDocuments.Set(float64(st.len()))
	}
	return nil
}

func (ix *Index) run(ctx context.Context, st *state, progress ProgressFunc, name string, useCache bool) (bool, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, name, "")
	defer func() {
		span.End()
		span.Log(ix.logger)
	}()
	logger := ix.logger.With("run", span.TraceID, "op", name)
	report := func(processed, total int) {
		if progress != nil {
			progress(processed, total)
		}
	}

	docs, err := ix.vault.List(ctx)
	if err != nil {
		return false, fmt.Errorf("listing documents: %w", err)
	}
	span.SetAttr("documents", len(docs))
	if ix.stopped.Load() {
		span.SetAttr("stopped", true)
		logger.Info("indexing stopped before start", "documents", len(docs))
		return false, nil
	}

	fromCache := false
	if useCache && ix.cache != nil {
		fromCache = ix.restore(ctx, st, docs)
	}

	listed := make(map[string]vault.DocumentInfo, len(docs))
	for _, d := range docs {
		listed[d.ID] = d
	}
	for _, e := range st.entries() {
		if _, ok := listed[e.id]; !ok {
			ix.removeFrom(st, e.id)
		}
	}
	pending := make([]vault.DocumentInfo, 0, len(docs))
	for _, d := range docs {
		if e, ok := st.get(d.ID); ok && d.ModTime.UnixMilli() <= e.modTime.UnixMilli() {
			continue
		}
		pending = append(pending, d)
	}
	if ix.bloom.Adaptive && !fromCache && len(pending) > 0 {
		ix.tune(ctx, st, pending, len(docs))
	}

	total := len(docs)
	processed := total - len(pending)
	logger.Info("indexing started",
		"documents", total,
		"pending", len(pending),
		"from_cache", fromCache,
	)
	if len(pending) == 0 {
		report(total, total)
	}
	done, err := ix.scan(ctx, st, pending, processed, total, report)
	if err != nil || !done {
		logger.Info("indexing interrupted",
			"indexed", st.len(),
			"total", total,
			"error", err,
		)
		return false, err
	}

	_, saveSpan := tracing.StartChildSpan(ctx, "save")
	if err := ix.saveState(ctx, st); err != nil {
		saveSpan.SetAttr("error", err.Error())
		logger.Warn("saving cache failed", "error", err)
	}
	saveSpan.End()

	elapsed := time.Since(start)
	if ix.metrics != nil {
		ix.metrics.IndexingDuration.Observe(elapsed.Seconds())
		ix.metrics.IndexedDocuments.Set(float64(st.len()))
	}
	logger.Info("indexing complete",
		"documents", st.len(),
		"reindexed", len(pending),
		"duration", elapsed,
	)
	if ix.onComplete != nil {
		ix.onComplete(RunSummary{
			RunID:     span.TraceID,
			Op:        name,
			Documents: st.len(),
			Reindexed: len(pending),
			FromCache: fromCache,
			Duration:  elapsed,
		})
	}
	return true, nil
}

// restore loads the cache into st and reports whether it was usable.
func (ix *Index) restore(ctx context.Context, st *state, docs []vault.DocumentInfo) bool {
	ctx, span := tracing.StartChildSpan(ctx, "cache_load")
	defer span.End()

	expect := st.currentLayout().params()
	if ix.bloom.Adaptive {
		expect.BloomSizes, expect.HashFunctions = nil, nil
	}
	rec, rep, err := ix.cache.Load(ctx, expect)
	if err != nil {
		span.SetAttr("error", err.Error())
		ix.logger.Warn("cache unreadable, indexing from scratch", "error", err)
		return false
	}
	if rec == nil {
		span.SetAttr("reason", rep.Reason)
		return false
	}

	l := layoutFromParams(rec.Params)
	if !ix.bloom.Adaptive {
		l.threshold = st.currentLayout().threshold
	}
	st.setLayout(l)

	restored, dropped := 0, rep.Dropped
	for _, d := range docs {
		ce, ok := rec.Entries[d.ID]
		if !ok {
			continue
		}
		filters, err := decodeFilters(l, ce)
		if err != nil {
			dropped++
			ix.logger.Warn("dropping cache entry", "id", d.ID, "error", err)
			continue
		}
		mod := ce.ModTime
		if mod.IsZero() {
			mod = rec.Timestamp
		}
		st.put(d.ID, mod, filters, ix.version.Add(1))
		restored++
	}
	st.words.SetCommonWords(rec.CommonWords)
	if dropped == 0 && restored == len(rec.Entries) {
		st.markSaved(st.generation())
	}
	span.SetAttr("restored", restored)
	span.SetAttr("dropped", dropped)
	return true
}

func decodeFilters(l layout, ce cache.Entry) (map[int]*bloom.DocumentFilter, error) {
	filters := make(map[int]*bloom.DocumentFilter, len(l.ngrams))
	for i, n := range l.ngrams {
		bits, ok := ce.Blooms[n]
		if !ok {
			return nil, fmt.Errorf("%w: no filter for ngram %d", apperrors.ErrCacheCorrupt, n)
		}
		f, err := bloom.DocumentFilterFromSerialized(bloom.Serialized{
			Size:              alignedSize(l.sizes[i]),
			HashFunctionCount: l.hashes[i],
			Bits:              bits,
		}, n)
		if err != nil {
			return nil, err
		}
		filters[n] = f
	}
	return filters, nil
}

func alignedSize(bits uint) uint {
	return (bits + bloom.WordBits - 1) / bloom.WordBits * bloom.WordBits
}

// tune sizes the filters from a sample of the pending documents.
func (ix *Index) tune(ctx context.Context, st *state, pending []vault.DocumentInfo, corpus int) {
	l := st.currentLayout()
	cfg := adaptive.DefaultConfig()
	cfg.NgramSize = l.ngrams[0]
	cfg.CorpusSize = corpus
	calc := adaptive.New(cfg, ix.tok)

	sample := pending[:min(len(pending), max(ix.bloom.AdaptiveSampleDocs, 1))]
	for _, d := range sample {
		text, err := ix.read(ctx, d.ID)
		if err != nil {
			continue
		}
		calc.AnalyzeTokens(ix.tok.Tokens(truncate(text, ix.idx.MaxChars)))
	}
	p := calc.GenerateRecommendedParameters(ix.bloom.FalsePositiveRate)
	st.setLayout(l.withRecommendation(p))
	ix.logger.Info("adaptive filter parameters",
		"sampled", len(sample),
		"bloom_size", p.BloomSize,
		"hash_functions", p.HashFunctionCount,
		"threshold", p.SimilarityThreshold,
	)
}

type built struct {
	tokens  []string
	filters map[int]*bloom.DocumentFilter
	err     error
}

// scan indexes pending in batches. Filters of one batch are built by a
// bounded worker pool and committed in enumeration order.
func (ix *Index) scan(ctx context.Context, st *state, pending []vault.DocumentInfo, processed, total int, report ProgressFunc) (bool, error) {
	ctx, span := tracing.StartChildSpan(ctx, "scan")
	defer span.End()

	batchSize := max(ix.idx.BatchSize, 1)
	workers := min(max(ix.idx.Workers, 1), batchSize)
	sinceSave, indexed := 0, 0
	for start := 0; start < len(pending); start += batchSize {
		if ix.stopped.Load() {
			span.SetAttr("stopped", true)
			return false, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		batch := pending[start:min(start+batchSize, len(pending))]
		ids := make([]string, len(batch))
		for i, d := range batch {
			ids[i] = d.ID
		}
		st.markIndexing(ids)
		l := st.currentLayout()

		results := make([]built, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, d := range batch {
			g.Go(func() error {
				if ix.stopped.Load() {
					results[i] = built{err: apperrors.ErrStopped}
					return nil
				}
				text, err := ix.read(gctx, d.ID)
				if err != nil {
					results[i] = built{err: fmt.Errorf("reading %s: %w", d.ID, err)}
					return nil
				}
				results[i] = ix.build(text, l, ix.stopped.Load)
				return nil
			})
		}
		_ = g.Wait()

		for i, d := range batch {
			r := results[i]
			switch {
			case errors.Is(r.err, apperrors.ErrStopped):
				st.unmarkIndexing(d.ID)
			case r.err != nil:
				st.unmarkIndexing(d.ID)
				ix.skip(d.ID, r.err)
			default:
				ix.commit(st, d.ID, d.ModTime, r)
				indexed++
			}
		}
		processed += len(batch)
		report(processed, total)
		ix.guardMemory(st, len(batch))

		sinceSave += len(batch)
		if ix.idx.SaveEvery > 0 && sinceSave >= ix.idx.SaveEvery {
			sinceSave = 0
			if err := ix.saveState(ctx, st); err != nil {
				ix.logger.Warn("periodic cache save failed", "error", err)
			}
		}
		if ix.stopped.Load() {
			span.SetAttr("stopped", true)
			return false, nil
		}
		if err := ix.yield(ctx); err != nil {
			return false, err
		}
	}
	span.SetAttr("indexed", indexed)
	return true, nil
}

func (ix *Index) yield(ctx context.Context) error {
	runtime.Gosched()
	if ix.idx.YieldInterval <= 0 {
		return nil
	}
	t := time.NewTimer(ix.idx.YieldInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// build tokenizes text and builds one filter per ngram size. stop may be nil.
func (ix *Index) build(text string, l layout, stop func() bool) built {
	if ix.idx.MaxDocumentBytes > 0 && int64(len(text)) > ix.idx.MaxDocumentBytes {
		return built{err: fmt.Errorf("%w: %d bytes, limit %d", apperrors.ErrDocumentTooLarge, len(text), ix.idx.MaxDocumentBytes)}
	}
	tokens := ix.tok.Tokens(truncate(text, ix.idx.MaxChars))
	filters := make(map[int]*bloom.DocumentFilter, len(l.ngrams))
	for i, n := range l.ngrams {
		f, err := bloom.NewDocumentFilter(tokens, n, l.sizes[i], l.hashes[i], ix.extract, stop)
		if err != nil {
			return built{err: err}
		}
		filters[n] = f
	}
	return built{tokens: tokens, filters: filters}
}

func (ix *Index) commit(st *state, id string, modTime time.Time, b built) {
	st.put(id, modTime, b.filters, ix.version.Add(1))
	if ix.cand.WordIndexEnabled {
		st.words.AddTokens(id, b.tokens)
	}
	st.adaptive.AnalyzeTokens(b.tokens)
	if ix.metrics != nil {
		ix.metrics.DocsIndexedTotal.Inc()
	}
}

// read fetches one document, retrying transient vault failures. A document
// that is gone or an invalid id fails at once; exhausted retries surface as
// *errors.IOError.
func (ix *Index) read(ctx context.Context, id string) (string, error) {
	var text string
	attempts, err := resilience.Retry(ctx, "vault read", resilience.RetryConfig{
		MaxAttempts:    ix.idx.ReadAttempts,
		InitialDelay:   ix.idx.ReadInitialDelay,
		AttemptTimeout: ix.idx.ReadTimeout,
		Retryable:      readRetryable,
		Logger:         ix.logger,
	}, func(ctx context.Context) error {
		var err error
		text, err = ix.vault.Read(ctx, id)
		return err
	})
	if err == nil {
		return text, nil
	}
	if !readRetryable(err) {
		return "", err
	}
	return "", apperrors.NewIOError("read", id, attempts, err)
}

func readRetryable(err error) bool {
	return !errors.Is(err, apperrors.ErrDocumentNotFound) &&
		!errors.Is(err, apperrors.ErrInvalidPath) &&
		!errors.Is(err, os.ErrNotExist) &&
		!errors.Is(err, context.Canceled)
}

func (ix *Index) skip(id string, err error) {
	reason := "error"
	switch {
	case errors.Is(err, apperrors.ErrDocumentTooLarge):
		reason = "too_large"
	case errors.Is(err, apperrors.ErrDocumentNotFound):
		reason = "not_found"
	}
	ix.logger.Warn("skipping document", "id", id, "reason", reason, "error", err)
	if ix.metrics != nil {
		ix.metrics.DocsSkippedTotal.WithLabelValues(reason).Inc()
	}
}

// ProcessDocument indexes text under id, replacing any previous version.
// Documents over the size ceiling are skipped with ErrDocumentTooLarge.
func (ix *Index) ProcessDocument(ctx context.Context, id, text string) error {
	if id == "" {
		return fmt.Errorf("%w: empty document id", apperrors.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	st := ix.state()
	st.markIndexing([]string{id})
	b := ix.build(text, st.currentLayout(), nil)
	if b.err != nil {
		st.unmarkIndexing(id)
		ix.skip(id, b.err)
		return b.err
	}
	ix.commit(st, id, ix.now(), b)
	ix.guardMemory(st, 1)
	if ix.metrics != nil {
		ix.metrics.IndexedDocuments.Set(float64(st.len()))
	}
	return nil
}

// RemoveDocument drops id from the index and reports whether it was present.
func (ix *Index) RemoveDocument(id string) bool {
	st := ix.state()
	removed := ix.removeFrom(st, id)
	if removed && ix.metrics != nil {
		ix.metrics.IndexedDocuments.Set(float64(st.len()))
	}
	return removed
}

func (ix *Index) removeFrom(st *state, id string) bool {
	st.words.RemoveDocument(id)
	return st.remove(id)
}

// guardMemory clears frequency statistics every FrequencyResetEvery
// documents. If the heap is still above MaxHeapBytes afterwards the whole
// index is dropped.
func (ix *Index) guardMemory(st *state, n int) {
	if !st.countProcessed(n, ix.mem.FrequencyResetEvery) {
		return
	}
	st.adaptive.ClearFrequencies()
	ix.logger.Debug("cleared frequency statistics", "documents", st.len())
	if ix.mem.MaxHeapBytes == 0 {
		return
	}
	if heap := ix.heapInUse(); heap > ix.mem.MaxHeapBytes {
		ix.logger.Error("heap above ceiling, clearing index",
			"heap_bytes", heap,
			"limit_bytes", ix.mem.MaxHeapBytes,
			"documents", st.len(),
		)
		st.clear()
		ix.pairs.purge()
	}
}

// Save persists the index if it changed since the last save or load.
func (ix *Index) Save(ctx context.Context) error {
	return ix.saveState(ctx, ix.state())
}

func (ix *Index) saveState(ctx context.Context, st *state) error {
	if ix.cache == nil {
		return nil
	}
	ix.saveMu.Lock()
	defer ix.saveMu.Unlock()
	snap, gen := st.snapshot()
	if !snap.Dirty {
		return nil
	}
	if err := ix.cache.Save(ctx, snap); err != nil {
		return err
	}
	st.markSaved(gen)
	return nil
}

// truncate cuts text to at most maxChars runes, ending at the last sentence
// end or else the last whitespace before the limit.
func truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	cut := 0
	for i := 0; i < maxChars; i++ {
		_, size := utf8.DecodeRuneInString(text[cut:])
		cut += size
	}
	head := text[:cut]
	for i := len(head) - 1; i > 0; i-- {
		switch head[i] {
		case '.', '!', '?':
			if next := text[i+1]; next == ' ' || next == '\n' || next == '\t' || next == '\r' {
				return head[:i+1]
			}
		}
	}
	if i := strings.LastIndexFunc(head, unicode.IsSpace); i > 0 {
		return strings.TrimRightFunc(head[:i], unicode.IsSpace)
	}
	return head
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/bloom"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/metrics"
)

func testConfig() config.CacheConfig {
	cfg := config.Default().Cache
	cfg.InitialDelay = time.Millisecond
	cfg.AttemptTimeout = time.Second
	return cfg
}

func defaultParams() Params {
	return Params{NgramSizes: []int{3}, BloomSizes: []int{2048}, HashFunctions: []int{3}, SimilarityThreshold: 0.3}
}

func entry(t *testing.T, words ...string) Entry {
	t.Helper()
	f, err := bloom.New(2048, 3)
	require.NoError(t, err)
	for _, w := range words {
		f.Add(w)
	}
	return Entry{NgramSizes: []int{3}, Blooms: map[int][]uint32{3: f.Serialize().Bits}, ModTime: time.UnixMilli(1_700_000_000_000)}
}

func newCache(t *testing.T, adapter vault.Adapter) *PersistentCache {
	t.Helper()
	c, err := New(adapter, testConfig(), nil, metrics.New(nil))
	require.NoError(t, err)
	return c
}

func TestNewRejectsTraversal(t *testing.T) {
	for _, dir := range []string{"../outside", "a//b", ""} {
		cfg := testConfig()
		cfg.Dir = dir
		_, err := New(vault.NewMemoryAdapter(), cfg, nil, nil)
		assert.ErrorIs(t, err, apperrors.ErrInvalidPath, dir)
	}
	cfg := testConfig()
	cfg.FileName = "sub/cache.json"
	_, err := New(vault.NewMemoryAdapter(), cfg, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidPath)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	adapter := vault.NewMemoryAdapter()
	c := newCache(t, adapter)

	rec := Record{
		Params:      defaultParams(),
		Stats:       Stats{DocumentCount: 50, AverageTokens: 12.5, VocabularySize: 300},
		Entries:     map[string]Entry{},
		CommonWords: []string{"note"},
	}
	for i := 0; i < 50; i++ {
		rec.Entries[fmt.Sprintf("doc%02d.md", i)] = entry(t, fmt.Sprint("w", i), "shared", "common")
	}
	require.NoError(t, c.Save(ctx, Snapshot{Record: rec, Dirty: true}))
	assert.Equal(t, []string{".simindex/similarity-cache.json"}, adapter.Files())

	loaded, report, err := newCache(t, adapter).Load(ctx, defaultParams())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, report.Found)
	assert.Equal(t, 50, report.Loaded)
	assert.False(t, report.Dirty)
	assert.Equal(t, rec.Stats, loaded.Stats)
	assert.Equal(t, []string{"note"}, loaded.CommonWords)
	assert.Equal(t, rec.Entries["doc07.md"], loaded.Entries["doc07.md"])
}

func TestSaveSkipsCleanSnapshot(t *testing.T) {
	adapter := vault.NewMemoryAdapter()
	c := newCache(t, adapter)
	require.NoError(t, c.Save(context.Background(), Snapshot{Record: Record{Params: defaultParams()}}))
	assert.Empty(t, adapter.Files())
}

func TestFileFormat(t *testing.T) {
	ctx := context.Background()
	adapter := vault.NewMemoryAdapter()
	c := newCache(t, adapter)
	rec := Record{Params: defaultParams(), Entries: map[string]Entry{"a.md": entry(t, "x")}}
	require.NoError(t, c.Save(ctx, Snapshot{Record: rec, Dirty: true}))

	data, err := adapter.Read(ctx, c.Path())
	require.NoError(t, err)
	var top map[string]any
	require.NoError(t, json.Unmarshal(data, &top))
	assert.EqualValues(t, 2, top["version"])
	for _, k := range requiredKeys {
		assert.Contains(t, top, k)
	}
	filters := top["filters"].(map[string]any)
	a := filters["a.md"].(map[string]any)
	assert.Len(t, a["bloom_3"], 64)
	assert.Equal(t, []any{3.0}, a["ngramSizes"])
}

func writeRaw(t *testing.T, adapter vault.Adapter, c *PersistentCache, mutate func(map[string]any)) {
	t.Helper()
	ctx := context.Background()
	rec := Record{Params: defaultParams(), Entries: map[string]Entry{"a.md": entry(t, "x"), "b.md": entry(t, "y")}}
	require.NoError(t, c.Save(ctx, Snapshot{Record: rec, Dirty: true}))
	data, err := adapter.Read(ctx, c.Path())
	require.NoError(t, err)
	var top map[string]any
	require.NoError(t, json.Unmarshal(data, &top))
	mutate(top)
	data, err = json.Marshal(top)
	require.NoError(t, err)
	require.NoError(t, adapter.Write(ctx, c.Path(), data))
}

func TestLoadRejectsWholeCache(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		expect Params
	}{
		{"version mismatch", func(m map[string]any) { m["version"] = 1 }, defaultParams()},
		{"missing version", func(m map[string]any) { delete(m, "version") }, defaultParams()},
		{"missing filters", func(m map[string]any) { delete(m, "filters") }, defaultParams()},
		{"missing params", func(m map[string]any) { delete(m, "params") }, defaultParams()},
		{"expired", func(m map[string]any) { m["timestamp"] = time.Now().Add(-30 * 24 * time.Hour).UnixMilli() }, defaultParams()},
		{"bloom size mismatch", func(map[string]any) {}, Params{NgramSizes: []int{3}, BloomSizes: []int{4096}, HashFunctions: []int{3}}},
		{"hash count mismatch", func(map[string]any) {}, Params{NgramSizes: []int{3}, BloomSizes: []int{2048}, HashFunctions: []int{4}}},
		{"ngram mismatch", func(map[string]any) {}, Params{NgramSizes: []int{2}, BloomSizes: []int{2048}, HashFunctions: []int{3}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			adapter := vault.NewMemoryAdapter()
			c := newCache(t, adapter)
			writeRaw(t, adapter, c, tc.mutate)

			rec, report, err := c.Load(context.Background(), tc.expect)
			require.NoError(t, err)
			assert.Nil(t, rec)
			assert.False(t, report.Found)
			assert.NotEmpty(t, report.Reason)
		})
	}
}

func TestLoadUnparsableAndMissing(t *testing.T) {
	ctx := context.Background()
	adapter := vault.NewMemoryAdapter()
	c := newCache(t, adapter)

	rec, report, err := c.Load(ctx, defaultParams())
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, "missing", report.Reason)

	require.NoError(t, adapter.Write(ctx, c.Path(), []byte("{not json")))
	rec, report, err = c.Load(ctx, defaultParams())
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.True(t, strings.HasPrefix(report.Reason, "unparsable"))
}

func TestLoadDropsCorruptEntries(t *testing.T) {
	adapter := vault.NewMemoryAdapter()
	c := newCache(t, adapter)
	writeRaw(t, adapter, c, func(m map[string]any) {
		filters := m["filters"].(map[string]any)
		b := filters["b.md"].(map[string]any)
		b["bloom_3"] = []int{1, 2, 3}
		filters["c.md"] = "garbage"
		filters["../evil.md"] = filters["a.md"]
	})

	rec, report, err := c.Load(context.Background(), defaultParams())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, report.Found)
	assert.Equal(t, 1, report.Loaded)
	assert.Equal(t, 3, report.Dropped)
	assert.True(t, report.Dirty)
	assert.Contains(t, rec.Entries, "a.md")
}

func TestLoadAcceptsAnySizeWhenUnconstrained(t *testing.T) {
	adapter := vault.NewMemoryAdapter()
	c := newCache(t, adapter)
	writeRaw(t, adapter, c, func(map[string]any) {})
	rec, _, err := c.Load(context.Background(), Params{NgramSizes: []int{3}})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []int{2048}, rec.Params.BloomSizes)
}

func TestSaveFailureKeepsPreviousCache(t *testing.T) {
	ctx := context.Background()
	adapter := vault.NewMemoryAdapter()
	c := newCache(t, adapter)
	first := Record{Params: defaultParams(), Entries: map[string]Entry{"a.md": entry(t, "x")}}
	require.NoError(t, c.Save(ctx, Snapshot{Record: first, Dirty: true}))

	boom := errors.New("rename failed")
	attempts := 0
	adapter.Fail = func(op, path string) error {
		if op == "rename" {
			attempts++
			return boom
		}
		return nil
	}
	second := Record{Params: defaultParams(), Entries: map[string]Entry{"a.md": entry(t, "x"), "b.md": entry(t, "y")}}
	err := c.Save(ctx, Snapshot{Record: second, Dirty: true})
	require.Error(t, err)
	var ioErr *apperrors.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, 3, ioErr.Attempts)
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, apperrors.ErrIO)
	assert.ErrorIs(t, err, boom)

	adapter.Fail = nil
	assert.Equal(t, []string{c.Path()}, adapter.Files())
	rec, _, err := c.Load(ctx, defaultParams())
	require.NoError(t, err)
	assert.Len(t, rec.Entries, 1)
}

func TestSaveRetriesTransientWrite(t *testing.T) {
	ctx := context.Background()
	adapter := vault.NewMemoryAdapter()
	c := newCache(t, adapter)
	failures := 0
	adapter.Fail = func(op, path string) error {
		if op == "write" && strings.HasSuffix(path, ".tmp") && failures < 2 {
			failures++
			return errors.New("transient")
		}
		return nil
	}
	rec := Record{Params: defaultParams(), Entries: map[string]Entry{"a.md": entry(t, "x")}}
	require.NoError(t, c.Save(ctx, Snapshot{Record: rec, Dirty: true}))
	assert.Equal(t, 2, failures)
}

func TestConcurrentSavesShareOneFile(t *testing.T) {
	ctx := context.Background()
	adapter := vault.NewMemoryAdapter()
	c := newCache(t, adapter)
	rec := Record{Params: defaultParams(), Entries: map[string]Entry{"a.md": entry(t, "x")}}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Save(ctx, Snapshot{Record: rec, Dirty: true})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, []string{c.Path()}, adapter.Files())
}

func TestSaveJoiningInFlightWritePersistsOwnSnapshot(t *testing.T) {
	ctx := context.Background()
	adapter := vault.NewMemoryAdapter()
	c := newCache(t, adapter)
	require.NoError(t, c.Writable(ctx))

	blocked := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	adapter.Fail = func(op, path string) error {
		if op == "write" && path == c.Path()+".tmp" {
			once.Do(func() {
				close(blocked)
				<-release
			})
		}
		return nil
	}

	older := Record{Params: defaultParams(), Entries: map[string]Entry{"a.md": entry(t, "x")}}
	newer := Record{Params: defaultParams(), Entries: map[string]Entry{"a.md": entry(t, "x"), "b.md": entry(t, "y")}}

	first := make(chan error, 1)
	go func() { first <- c.Save(ctx, Snapshot{Record: older, Dirty: true}) }()
	<-blocked
	second := make(chan error, 1)
	go func() { second <- c.Save(ctx, Snapshot{Record: newer, Dirty: true}) }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-first)
	require.NoError(t, <-second)
	loaded, _, err := c.Load(ctx, defaultParams())
	require.NoError(t, err)
	assert.Contains(t, loaded.Entries, "a.md")
	assert.Contains(t, loaded.Entries, "b.md")
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	adapter := vault.NewMemoryAdapter()
	c := newCache(t, adapter)
	rec := Record{Params: defaultParams(), Entries: map[string]Entry{"a.md": entry(t, "x")}}
	require.NoError(t, c.Save(ctx, Snapshot{Record: rec, Dirty: true}))
	require.NoError(t, c.Clear(ctx))
	assert.Empty(t, adapter.Files())
}

func TestFileAdapterBackend(t *testing.T) {
	ctx := context.Background()
	adapter := vault.NewFileAdapter(t.TempDir())
	c := newCache(t, adapter)
	rec := Record{Params: defaultParams(), Entries: map[string]Entry{"notes/a.md": entry(t, "x")}}
	require.NoError(t, c.Save(ctx, Snapshot{Record: rec, Dirty: true}))

	loaded, report, err := c.Load(ctx, defaultParams())
	require.NoError(t, err)
	assert.True(t, report.Found)
	assert.Contains(t, loaded.Entries, "notes/a.md")
	ok, err := adapter.Exists(ctx, c.Path()+".tmp")
	require.NoError(t, err)
	assert.False(t, ok)
}

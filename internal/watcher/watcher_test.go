package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
)

type recordingIndexer struct {
	mu        sync.Mutex
	processed map[string][]string
	removed   []string
}

func newRecordingIndexer() *recordingIndexer {
	return &recordingIndexer{processed: make(map[string][]string)}
}

func (r *recordingIndexer) ProcessDocument(_ context.Context, id, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed[id] = append(r.processed[id], text)
	return nil
}

func (r *recordingIndexer) RemoveDocument(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
	return true
}

func (r *recordingIndexer) versions(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.processed[id]...)
}

func (r *recordingIndexer) removedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

func startWatcher(t *testing.T, root string, ix Indexer) {
	t.Helper()
	fsv, err := vault.NewFS(config.VaultConfig{Root: root, IncludePatterns: []string{"**.md"}}, nil)
	require.NoError(t, err)
	w, err := New(fsv, ix, config.WatcherConfig{Debounce: 30 * time.Millisecond}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, w.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestWatcherReindexesChangedFiles(t *testing.T) {
	root := t.TempDir()
	ix := newRecordingIndexer()
	startWatcher(t, root, ix)

	path := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("first draft"), 0o644))
	require.Eventually(t, func() bool {
		v := ix.versions("note.md")
		return len(v) > 0 && v[len(v)-1] == "first draft"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("second draft"), 0o644))
	require.Eventually(t, func() bool {
		v := ix.versions("note.md")
		return v[len(v)-1] == "second draft"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"note.md"}, ix.removedIDs())
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	ix := newRecordingIndexer()
	fsv, err := vault.NewFS(config.VaultConfig{Root: root}, nil)
	require.NoError(t, err)
	w, err := New(fsv, ix, config.WatcherConfig{Debounce: 300 * time.Millisecond}, nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	path := filepath.Join(root, "burst.md")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("v"+string(rune('0'+i))), 0o644))
	}
	require.Eventually(t, func() bool {
		return len(ix.versions("burst.md")) > 0
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(400 * time.Millisecond)

	v := ix.versions("burst.md")
	assert.Len(t, v, 1)
	assert.Equal(t, "v4", v[0])
}

func TestWatcherIgnoresUnmatchedAndHiddenFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".simindex"), 0o755))
	ix := newRecordingIndexer()
	startWatcher(t, root, ix)

	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".simindex", "cache.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "marker.md"), []byte("marker"), 0o644))

	require.Eventually(t, func() bool {
		return len(ix.versions("marker.md")) > 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, ix.versions("image.png"))
	assert.Empty(t, ix.versions(".simindex/cache.md"))
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	ix := newRecordingIndexer()
	startWatcher(t, root, ix)

	sub := filepath.Join(root, "projects")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// The directory watch is added asynchronously; keep rewriting until seen.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(sub, "plan.md"), []byte("plan"), 0o644)
		return len(ix.versions("projects/plan.md")) > 0
	}, 5*time.Second, 50*time.Millisecond)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/similarity"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCorpusGenIndexAndRelated(t *testing.T) {
	root := t.TempDir()

	out, err := run(t, "corpusgen", "--root", root, "--count", "40", "--seed", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 40 notes")

	out, err = run(t, "corpusgen", "--root", root, "--count", "2", "--seed", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "total 42")
	matches, err := filepath.Glob(filepath.Join(root, "generated_note_000042_*.md"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	out, err = run(t, "index", "--root", root, "--json")
	require.NoError(t, err)
	var stats similarity.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 42, stats.Documents)
	_, err = os.Stat(filepath.Join(root, ".simindex", "similarity-cache.json"))
	require.NoError(t, err)

	id := filepath.Base(matches[0])
	out, err = run(t, "related", id, "--root", root, "--threshold=false", "--limit", "3", "--json")
	require.NoError(t, err)
	var results []similarity.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.LessOrEqual(t, len(results), 3)
	for _, r := range results {
		assert.NotEqual(t, id, r.ID)
	}
}

func TestRelatedUnknownDocument(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("alpha beta gamma delta"), 0o644))

	_, err := run(t, "related", "missing.md", "--root", root)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "missing.md"))

	_, err = run(t, "related", "a.md", "--root", root, "--limit", "0")
	require.Error(t, err)
}

func TestEvaluateCommand(t *testing.T) {
	root := t.TempDir()
	_, err := run(t, "corpusgen", "--root", root, "--count", "20", "--seed", "8")
	require.NoError(t, err)

	out, err := run(t, "evaluate", "--root", root, "--samples", "50", "--seed", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Sample size: 50 pairs")
	assert.Contains(t, out, "BLOOM")
}

func TestUnknownConfigFile(t *testing.T) {
	_, err := run(t, "index", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadTestCommand(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]int{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Query().Get("id")]++
		mu.Unlock()
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.md"), []byte("beta"), 0o644))

	out, err := run(t, "loadtest", "--root", root, "--url", srv.URL, "--concurrency", "2", "--duration", "150ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents:   2")
	assert.Contains(t, out, "200:")

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "a.md")
	assert.Contains(t, seen, "sub/b.md")
}

func TestLoadTestRejectsZeroConcurrency(t *testing.T) {
	_, err := run(t, "loadtest", "--id", "a.md", "--url", "http://127.0.0.1:1", "--duration", "50ms", "--concurrency", "0")
	require.Error(t, err)
}

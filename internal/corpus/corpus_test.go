package corpus

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
)

func TestNoteLayout(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 1; i <= 50; i++ {
		cat := Categories[i%len(Categories)]
		note := Note(rng, cat, i)
		lines := strings.Split(note, "\n")
		assert.True(t, strings.HasPrefix(lines[0], "# "), "title line: %q", lines[0])
		assert.Contains(t, lines[0], " Note ")
		assert.True(t, strings.HasPrefix(lines[2], "Category: "))
		assert.True(t, strings.HasPrefix(lines[3], "Generated: File "))

		sections := strings.Count(note, "## Section ")
		assert.GreaterOrEqual(t, sections, 3)
		assert.LessOrEqual(t, sections, 5)
		found := false
		for _, chunk := range chunks[cat] {
			found = found || strings.Contains(note, chunk)
		}
		assert.True(t, found, "note %d has no %s sentence", i, cat)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	ctx := context.Background()
	a, b := vault.NewMemoryAdapter(), vault.NewMemoryAdapter()

	pa, err := Generate(ctx, a, "notes", 1, 20, rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	pb, err := Generate(ctx, b, "notes", 1, 20, rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	require.Equal(t, pa, pb)
	require.Len(t, pa, 20)

	for _, p := range pa {
		assert.True(t, strings.HasPrefix(p, "notes/generated_note_"))
		da, err := a.Read(ctx, p)
		require.NoError(t, err)
		db, err := b.Read(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, da, db)
	}
	assert.True(t, strings.HasPrefix(pa[0], "notes/generated_note_000001_"))
}

func TestGenerateWritesFiles(t *testing.T) {
	dir := t.TempDir()
	paths, err := Generate(context.Background(), vault.NewFileAdapter(dir), "", 41, 3, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.True(t, strings.HasPrefix(paths[0], "generated_note_000041_"))
	assert.True(t, strings.HasPrefix(paths[2], "generated_note_000043_"))

	data, err := os.ReadFile(filepath.Join(dir, paths[1]))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Note 000042")
}

func TestGenerateHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	paths, err := Generate(ctx, vault.NewMemoryAdapter(), "", 1, 10, rand.New(rand.NewSource(1)))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, paths)
}

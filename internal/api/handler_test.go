package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
)

var topics = []string{
	"machine learning neural network training gradient model optimizer",
	"cooking recipe kitchen flavor garlic oven dinner seasoning",
	"astronomy planet galaxy telescope orbit comet nebula observatory",
}

func newServer(t *testing.T) (*httptest.Server, *similarity.Index, *Handler) {
	t.Helper()
	v := vault.NewMemory()
	for i := 0; i < 12; i++ {
		v.Put(fmt.Sprintf("note%02d.md", i), fmt.Sprintf("%s extra%d", topics[i%len(topics)], i))
	}
	cfg := config.Default()
	cfg.Index.Seed = 3
	opts := similarity.OptionsFromConfig(cfg)
	opts.Vault = v
	ix, err := similarity.New(opts)
	require.NoError(t, err)
	require.NoError(t, ix.Initialize(context.Background(), nil))

	scfg := cfg.Server
	scfg.DefaultLimit = 3
	scfg.MaxResults = 5
	h := New(context.Background(), ix, scfg, nil)
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, ix, h
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestSimilarDefaultsAndCapsLimit(t *testing.T) {
	srv, _, _ := newServer(t)

	var got similarResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/similar?id=note00.md", &got))
	assert.Equal(t, "note00.md", got.ID)
	require.Len(t, got.Results, 3)
	var n int
	_, err := fmt.Sscanf(got.Results[0].ID, "note%02d.md", &n)
	require.NoError(t, err)
	assert.Zero(t, n%len(topics), "best match should share the topic")
	for i := 1; i < len(got.Results); i++ {
		assert.GreaterOrEqual(t, got.Results[i-1].Similarity, got.Results[i].Similarity)
	}

	got = similarResponse{}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/similar?id=note00.md&limit=50", &got))
	assert.LessOrEqual(t, len(got.Results), 5)
}

func TestSimilarMinScore(t *testing.T) {
	srv, _, _ := newServer(t)

	var got similarResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/similar?id=note01.md&min=threshold&limit=5", &got))
	for _, r := range got.Results {
		assert.GreaterOrEqual(t, r.Similarity, got.Threshold)
	}

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/similar?id=note01.md&min=2", nil))
}

func TestSimilarErrors(t *testing.T) {
	srv, _, _ := newServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/similar", &body))
	assert.Contains(t, body["error"], "'id'")
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/similar?id=missing.md", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/similar?id=note00.md&limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/similar?id=note00.md&limit=abc", nil))
}

func TestCandidatesAndPairSimilarity(t *testing.T) {
	srv, ix, _ := newServer(t)

	var cands struct {
		Count      int      `json:"count"`
		Candidates []string `json:"candidates"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/candidates?id=note00.md", &cands))
	assert.Equal(t, 11, cands.Count)
	assert.NotContains(t, cands.Candidates, "note00.md")

	var pair struct {
		Similarity float64 `json:"similarity"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/similarity?a=note00.md&b=note03.md", &pair))
	assert.InDelta(t, ix.CalculateSimilarity("note00.md", "note03.md"), pair.Similarity, 1e-9)
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/similarity?a=note00.md&b=nope.md", nil))
}

func TestDocumentStateAndStats(t *testing.T) {
	srv, _, _ := newServer(t)

	var doc map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/documents/note04.md", &doc))
	assert.Equal(t, "indexed", doc["state"])
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/documents/sub/dir/x.md", &doc))
	assert.Equal(t, "sub/dir/x.md", doc["id"])
	assert.Equal(t, "unindexed", doc["state"])

	var stats similarity.Stats
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/stats", &stats))
	assert.Equal(t, 12, stats.Documents)
	assert.True(t, stats.Initialized)
}

func TestReindexRunsInBackground(t *testing.T) {
	srv, ix, h := newServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/reindex", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		return !h.Reindexing()
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, ix.IsInitialized())
	assert.Equal(t, 12, ix.DocumentCount())

	resp, err = http.Post(srv.URL+"/api/v1/save", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

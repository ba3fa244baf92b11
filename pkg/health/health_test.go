package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker(nil)
	c.Register("index", func(ctx context.Context) ComponentHealth { return FromError(nil, false) })
	c.Register("cache", func(ctx context.Context) ComponentHealth { return FromError(errors.New("read-only"), true) })

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusUp, report.Components["index"].Status)
	assert.Equal(t, "read-only", report.Components["cache"].Message)

	c.Register("vault", func(ctx context.Context) ComponentHealth { return FromError(errors.New("gone"), false) })
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker(nil)
	ready := false
	c.Register("index", func(ctx context.Context) ComponentHealth {
		if !ready {
			return FromError(errors.New("initializing"), false)
		}
		return FromError(nil, false)
	})

	rec := httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = true
	rec = httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusUp, report.Status)
}

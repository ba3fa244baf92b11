// Package cache persists the similarity index to a versioned JSON document
// so a restart can skip re-indexing. Writes go to a temporary file that is
// re-read and validated before it atomically replaces the real one.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/resilience"
)

const probeName = ".write-probe"

// LoadReport explains the outcome of Load.
type LoadReport struct {
	// Found is true when a usable cache was returned.
	Found bool
	// Reason is set when no cache was returned.
	Reason  string
	Loaded  int
	Dropped int
	// Dirty means entries were dropped and the cache should be rewritten.
	Dirty bool
}

// PersistentCache reads and writes the cache file through a vault.Adapter.
type PersistentCache struct {
	adapter vault.Adapter
	cfg     config.CacheConfig
	dir     string
	path    string
	tmpPath string
	logger  *slog.Logger
	metrics *metrics.Metrics

	group singleflight.Group
	ready atomic.Bool
	now   func() time.Time
}

// New validates the configured location. An ErrInvalidPath error means the
// caller should run without a cache.
func New(adapter vault.Adapter, cfg config.CacheConfig, logger *slog.Logger, m *metrics.Metrics) (*PersistentCache, error) {
	if err := vault.ValidatePath(cfg.Dir); err != nil {
		return nil, fmt.Errorf("cache dir: %w", err)
	}
	if err := vault.ValidatePath(cfg.FileName); err != nil {
		return nil, fmt.Errorf("cache file name: %w", err)
	}
	if strings.ContainsAny(cfg.FileName, `/\`) {
		return nil, fmt.Errorf("%w: cache file name %q contains a separator", apperrors.ErrInvalidPath, cfg.FileName)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	path := vault.Join(cfg.Dir, cfg.FileName)
	return &PersistentCache{
		adapter: adapter,
		cfg:     cfg,
		dir:     cfg.Dir,
		path:    path,
		tmpPath: path + ".tmp",
		logger:  logger.With("component", "persistent-cache", "path", path),
		metrics: m,
		now:     time.Now,
	}, nil
}

// Path is the cache file location relative to the adapter root.
func (c *PersistentCache) Path() string { return c.path }

func retryable(err error) bool {
	return !errors.Is(err, apperrors.ErrInvalidPath) &&
		!errors.Is(err, os.ErrNotExist) &&
		!errors.Is(err, context.Canceled)
}

// do runs one adapter operation with bounded retries, each attempt
// time-boxed. Exhausted retries surface as *errors.IOError.
func (c *PersistentCache) do(ctx context.Context, op, path string, fn func(ctx context.Context) error) error {
	attempts, err := resilience.Retry(ctx, "cache "+op, resilience.RetryConfig{
		MaxAttempts:    c.cfg.MaxAttempts,
		InitialDelay:   c.cfg.InitialDelay,
		AttemptTimeout: c.cfg.AttemptTimeout,
		Retryable:      retryable,
		Logger:         c.logger,
	}, fn)
	if err == nil {
		return nil
	}
	if !retryable(err) {
		return err
	}
	return apperrors.NewIOError(op, path, attempts, err)
}

// prepare creates the cache directory and probes write access once.
func (c *PersistentCache) prepare(ctx context.Context) error {
	if c.ready.Load() {
		return nil
	}
	if err := c.do(ctx, "mkdir", c.dir, func(ctx context.Context) error {
		return c.adapter.Mkdir(ctx, c.dir)
	}); err != nil {
		return err
	}
	probe := vault.Join(c.dir, probeName)
	if err := c.do(ctx, "write", probe, func(ctx context.Context) error {
		return c.adapter.Write(ctx, probe, []byte("ok"))
	}); err != nil {
		return err
	}
	if err := c.do(ctx, "remove", probe, func(ctx context.Context) error {
		return c.adapter.Remove(ctx, probe)
	}); err != nil {
		return err
	}
	c.ready.Store(true)
	return nil
}

// Writable reports whether the cache location accepts writes.
func (c *PersistentCache) Writable(ctx context.Context) error {
	return c.prepare(ctx)
}

// Save writes snap unless it is clean. Concurrent calls share one write;
// a caller whose own snapshot was not the one written waits for that write
// and then saves again, so a nil return always means snap reached storage.
func (c *PersistentCache) Save(ctx context.Context, snap Snapshot) error {
	if !snap.Dirty {
		return nil
	}
	start := time.Now()
	own := &snap.Record
	for {
		v, err, _ := c.group.Do("save", func() (any, error) {
			return own, c.save(ctx, *own)
		})
		if err == nil && v.(*Record) != own {
			c.logger.Debug("joined an in-flight save of an older snapshot, saving again")
			if err = ctx.Err(); err == nil {
				continue
			}
		}
		c.observe("save", start, err)
		return err
	}
}

func (c *PersistentCache) save(ctx context.Context, rec Record) error {
	if err := c.prepare(ctx); err != nil {
		return fmt.Errorf("preparing cache directory: %w", err)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = c.now()
	}
	data, err := encode(rec)
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}

	if err := c.do(ctx, "write", c.tmpPath, func(ctx context.Context) error {
		return c.adapter.Write(ctx, c.tmpPath, data)
	}); err != nil {
		c.discardTemp(ctx)
		return err
	}

	var written []byte
	if err := c.do(ctx, "read", c.tmpPath, func(ctx context.Context) error {
		var err error
		written, err = c.adapter.Read(ctx, c.tmpPath)
		return err
	}); err != nil {
		c.discardTemp(ctx)
		return err
	}
	if err := verify(written, len(rec.Entries)); err != nil {
		c.discardTemp(ctx)
		return fmt.Errorf("%w: verifying %s: %v", apperrors.ErrCacheCorrupt, c.tmpPath, err)
	}

	if err := c.do(ctx, "rename", c.tmpPath, func(ctx context.Context) error {
		return c.adapter.Rename(ctx, c.tmpPath, c.path)
	}); err != nil {
		c.discardTemp(ctx)
		return err
	}
	c.logger.Info("cache saved", "entries", len(rec.Entries), "bytes", len(data))
	return nil
}

func (c *PersistentCache) discardTemp(ctx context.Context) {
	if err := c.adapter.Remove(context.WithoutCancel(ctx), c.tmpPath); err != nil {
		c.logger.Warn("removing temp cache file failed", "error", err)
	}
}

// Load returns the cached record, or nil when the cache is missing,
// unreadable, of another version, structurally incomplete, incompatible with
// expect or older than MaxAge. Entries that fail validation are dropped
// individually. The error is non-nil only when reading kept failing.
func (c *PersistentCache) Load(ctx context.Context, expect Params) (*Record, LoadReport, error) {
	start := time.Now()
	rec, report, err := c.load(ctx, expect)
	c.observe("load", start, err)
	if err == nil && !report.Found {
		c.logger.Info("no usable cache", "reason", report.Reason)
	}
	return rec, report, err
}

func (c *PersistentCache) load(ctx context.Context, expect Params) (*Record, LoadReport, error) {
	var data []byte
	err := c.do(ctx, "read", c.path, func(ctx context.Context) error {
		var err error
		data, err = c.adapter.Read(ctx, c.path)
		return err
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, LoadReport{Reason: "missing"}, nil
	}
	if err != nil {
		return nil, LoadReport{Reason: "read failed"}, err
	}

	var top struct {
		Version     *int                       `json:"version"`
		Timestamp   *int64                     `json:"timestamp"`
		Params      *Params                    `json:"params"`
		Stats       *Stats                     `json:"stats"`
		Filters     map[string]json.RawMessage `json:"filters"`
		CommonWords []string                   `json:"commonWords"`
	}
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, LoadReport{Reason: "unparsable: " + err.Error()}, nil
	}
	switch {
	case top.Version == nil:
		return nil, LoadReport{Reason: "missing version"}, nil
	case *top.Version != Version:
		return nil, LoadReport{Reason: fmt.Sprintf("version %d, want %d", *top.Version, Version)}, nil
	case top.Timestamp == nil || top.Params == nil || top.Filters == nil:
		return nil, LoadReport{Reason: "missing required sections"}, nil
	case !top.Params.valid():
		return nil, LoadReport{Reason: "invalid params"}, nil
	}
	if ok, why := top.Params.compatibleWith(expect); !ok {
		return nil, LoadReport{Reason: "incompatible params: " + why}, nil
	}
	ts := time.UnixMilli(*top.Timestamp)
	if c.cfg.MaxAge > 0 && c.now().Sub(ts) > c.cfg.MaxAge {
		return nil, LoadReport{Reason: fmt.Sprintf("older than %v", c.cfg.MaxAge)}, nil
	}

	rec := &Record{
		Timestamp:   ts,
		Params:      *top.Params,
		Entries:     make(map[string]Entry, len(top.Filters)),
		CommonWords: top.CommonWords,
	}
	if top.Stats != nil {
		rec.Stats = *top.Stats
	}
	report := LoadReport{Found: true}
	for id, raw := range top.Filters {
		if err := vault.ValidatePath(id); err != nil {
			report.Dropped++
			c.logger.Warn("dropping cache entry", "id", id, "error", err)
			continue
		}
		entry, err := decodeEntry(raw, rec.Params)
		if err != nil {
			report.Dropped++
			c.logger.Warn("dropping cache entry", "id", id, "error", err)
			continue
		}
		rec.Entries[id] = entry
	}
	report.Loaded = len(rec.Entries)
	report.Dirty = report.Dropped > 0
	c.logger.Info("cache loaded", "entries", report.Loaded, "dropped", report.Dropped, "age", c.now().Sub(ts).Round(time.Second))
	return rec, report, nil
}

// Clear removes the cache file and any leftover temporary file.
func (c *PersistentCache) Clear(ctx context.Context) error {
	for _, p := range []string{c.path, c.tmpPath} {
		if err := c.do(ctx, "remove", p, func(ctx context.Context) error {
			return c.adapter.Remove(ctx, p)
		}); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (c *PersistentCache) observe(op string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.CacheOperations.WithLabelValues(op, status).Inc()
	c.metrics.CacheDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

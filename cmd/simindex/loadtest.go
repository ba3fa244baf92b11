package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
)

type loadStats struct {
	total     atomic.Int64
	success   atomic.Int64
	failed    atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newLoadStats() *loadStats {
	return &loadStats{
		latencies: make([]time.Duration, 0, 1<<14),
		codes:     make(map[int]int64),
	}
}

func (s *loadStats) record(d time.Duration, code int, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	if code >= 200 && code < 300 {
		s.success.Add(1)
	} else {
		s.failed.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func newLoadTestCmd(g *globalFlags) *cobra.Command {
	var (
		baseURL     string
		concurrency int
		duration    time.Duration
		limit       int
		ids         []string
	)
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive /api/v1/similar on a running server and report latency",
		Long: `loadtest cycles through document ids, taken from --id or from the vault
under --root, and requests related documents for each from a running
"simindex serve".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency < 1 {
				return fmt.Errorf("%w: --concurrency must be positive", apperrors.ErrInvalidInput)
			}
			ctx := cmd.Context()
			if len(ids) == 0 {
				cfg, log, err := g.load()
				if err != nil {
					return err
				}
				fsv, err := vault.NewFS(cfg.Vault, log)
				if err != nil {
					return err
				}
				docs, err := fsv.List(ctx)
				if err != nil {
					return fmt.Errorf("listing vault: %w", err)
				}
				for _, d := range docs {
					ids = append(ids, d.ID)
				}
			}
			if len(ids) == 0 {
				return fmt.Errorf("%w: no document ids to request", apperrors.ErrInvalidInput)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== Similarity Load Test ===")
			fmt.Fprintf(out, "Target:      %s\n", baseURL)
			fmt.Fprintf(out, "Concurrency: %d\n", concurrency)
			fmt.Fprintf(out, "Duration:    %s\n", duration)
			fmt.Fprintf(out, "Documents:   %d\n\n", len(ids))

			stats := runLoad(ctx, baseURL, ids, limit, concurrency, duration)
			printLoadReport(out, stats, duration)
			if stats.total.Load() == 0 {
				return errors.New("no requests completed; is the server running?")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "base URL of the similarity server")
	cmd.Flags().IntVar(&concurrency, "concurrency", 10, "number of concurrent workers")
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "test duration")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "limit parameter sent with each request")
	cmd.Flags().StringSliceVar(&ids, "id", nil, "document ids to request (default: every document in the vault)")
	return cmd
}

func runLoad(ctx context.Context, baseURL string, ids []string, limit, concurrency int, duration time.Duration) *loadStats {
	stats := newLoadStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; ctx.Err() == nil; i++ {
				u := fmt.Sprintf("%s/api/v1/similar?id=%s&limit=%d", baseURL, url.QueryEscape(ids[i%len(ids)]), limit)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
				if err != nil {
					stats.record(0, 0, err)
					return
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.record(elapsed, 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(elapsed, resp.StatusCode, nil)
			}
		}()
	}
	wg.Wait()
	return stats
}

func printLoadReport(out io.Writer, stats *loadStats, duration time.Duration) {
	total := stats.total.Load()
	failed := stats.failed.Load()

	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "Total Requests:  %d\n", total)
	fmt.Fprintf(out, "Successful:      %d\n", stats.success.Load())
	fmt.Fprintf(out, "Errors:          %d\n", failed)
	if total > 0 {
		fmt.Fprintf(out, "Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Fprintf(out, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()
	lat := slices.Clone(stats.latencies)
	if len(lat) > 0 {
		slices.Sort(lat)
		var sum time.Duration
		for _, l := range lat {
			sum += l
		}
		avg := sum / time.Duration(len(lat))
		var sq float64
		for _, l := range lat {
			d := float64(l - avg)
			sq += d * d
		}

		fmt.Fprintln(out, "\n=== Latency ===")
		fmt.Fprintf(out, "Min:    %s\n", lat[0])
		fmt.Fprintf(out, "Avg:    %s\n", avg)
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Fprintf(out, "P%-2.0f:    %s\n", p, percentile(lat, p))
		}
		fmt.Fprintf(out, "Max:    %s\n", lat[len(lat)-1])
		fmt.Fprintf(out, "StdDev: %s\n", time.Duration(math.Sqrt(sq/float64(len(lat)))))
	}

	fmt.Fprintln(out, "\n=== Status Codes ===")
	codes := make([]int, 0, len(stats.codes))
	for c := range stats.codes {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	for _, c := range codes {
		fmt.Fprintf(out, "  %d: %d\n", c, stats.codes[c])
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

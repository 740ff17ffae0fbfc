package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/obsidianstack/valuemetric/agent/internal/config"
	"github.com/obsidianstack/valuemetric/pkg/types"
)

// retryDelay is the pause before the first retry; it doubles per attempt.
const retryDelay = 100 * time.Millisecond

type promScraper struct {
	src    config.Source
	client *http.Client
}

// Scrape fetches the source's exposition, retrying up to src.Retries times.
// The whole call, retries included, is bounded by src.Timeout.
func (s *promScraper) Scrape(ctx context.Context) (Families, error) {
	if s.src.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.src.Timeout)
		defer cancel()
	}

	delay := retryDelay
	var lastErr error
	for attempt := 0; attempt <= s.src.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("scrape %q: %w (last error: %v)", s.src.ID, ctx.Err(), lastErr)
			case <-time.After(delay):
			}
			delay *= 2
		}
		mfs, err := fetchFamilies(ctx, s.client, s.src.Endpoint)
		if err == nil {
			return mfs, nil
		}
		lastErr = err
		slog.Debug("scraper: fetch attempt failed",
			"source", s.src.ID, "attempt", attempt+1, "err", err)
	}
	return nil, fmt.Errorf("scrape %q: %w", s.src.ID, lastErr)
}

// Project turns one family of an exposition into per-slice samples. The slice
// key is built from the given label names; series that collapse onto the same
// key are summed. A family absent from mfs yields no samples.
func Project(mfs Families, family string, dimensions []string) []types.Sample {
	mf := mfs[family]
	if mf == nil {
		return nil
	}

	sums := make(map[types.DimensionKey]float64)
	var order []types.DimensionKey
	for _, m := range mf.GetMetric() {
		key := keyFor(m, dimensions)
		if _, ok := sums[key]; !ok {
			order = append(order, key)
		}
		sums[key] += valueOf(m)
	}

	out := make([]types.Sample, 0, len(order))
	for _, k := range order {
		out = append(out, types.Sample{Key: k, Value: sums[k]})
	}
	return out
}

func keyFor(m *dto.Metric, dimensions []string) types.DimensionKey {
	if len(dimensions) == 0 {
		return types.DimensionKey{}
	}
	labels := make(map[string]string, len(dimensions))
	for _, lp := range m.GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	pairs := make([]string, 0, 2*len(dimensions))
	for _, d := range dimensions {
		pairs = append(pairs, d, labels[d])
	}
	return types.KeyOf(pairs...)
}

// valueOf reads the numeric value of one series. Summaries and histograms
// contribute their running sum.
func valueOf(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	case m.Summary != nil:
		return m.Summary.GetSampleSum()
	case m.Histogram != nil:
		return m.Histogram.GetSampleSum()
	}
	return 0
}

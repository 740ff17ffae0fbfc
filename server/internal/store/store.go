package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/valuemetric/pkg/report"
)

// Entry is a decoded report together with the time it was received.
type Entry struct {
	Report     *report.Report
	ReceivedAt time.Time
}

// Store is a thread-safe in-memory report store keyed by metric ID. Each
// metric keeps its reports in arrival order, capped at maxPer. A background
// goroutine (Run) periodically evicts reports older than the TTL.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]*Entry
	ttl    time.Duration
	maxPer int
	now    func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL and per-metric cap.
func New(ttl time.Duration, maxPerMetric int) *Store {
	return &Store{
		data:   make(map[string][]*Entry),
		ttl:    ttl,
		maxPer: max(maxPerMetric, 1),
		now:    time.Now,
	}
}

// TTL returns the configured retention.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put appends rep to its metric's history, dropping the oldest report once
// the cap is reached. Callers must not modify rep after calling Put.
func (s *Store) Put(rep *report.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append(s.data[rep.MetricID], &Entry{Report: rep, ReceivedAt: s.now()})
	if over := len(entries) - s.maxPer; over > 0 {
		entries = append(entries[:0:0], entries[over:]...)
	}
	s.data[rep.MetricID] = entries
}

// Get returns the live reports for metricID, oldest first, and whether any
// were found.
func (s *Store) Get(metricID string) ([]*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live := s.live(s.data[metricID], s.now().Add(-s.ttl))
	return live, len(live) > 0
}

// Metrics returns the sorted IDs of metrics with at least one live report.
func (s *Store) Metrics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]string, 0, len(s.data))
	for id, entries := range s.data {
		if len(s.live(entries, cutoff)) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Count returns the number of reports currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, entries := range s.data {
		n += len(entries)
	}
	return n
}

func (s *Store) live(entries []*Entry, cutoff time.Time) []*Entry {
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e.ReceivedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Evict removes reports received at or before now minus TTL and drops
// metrics left without reports. It returns the number of reports removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, entries := range s.data {
		kept := s.live(entries, cutoff)
		removed += len(entries) - len(kept)
		if len(kept) == 0 {
			delete(s.data, id)
			continue
		}
		s.data[id] = kept
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := max(s.ttl/2, time.Second)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale reports", "count", n)
			}
		}
	}
}

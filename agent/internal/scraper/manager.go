package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/valuemetric/pkg/types"
)

// Target is one pullable series set: a family of a source projected onto a
// list of dimension labels. Producers and conditions pull by target ID.
type Target struct {
	ID         string
	Source     string
	Family     string
	Dimensions []string
}

// Observer receives scheduled pull results for a target.
type Observer interface {
	OnDataPulled(batch types.PullBatch)
}

type cachedScrape struct {
	at  time.Time
	mfs Families
}

// Manager owns the scrapers of all sources and serves pulls by target.
// Scrapes of one source are cached for the cool-down so that several targets
// on the same endpoint share a single fetch.
//
// All exported methods are safe for concurrent use.
type Manager struct {
	cooldown time.Duration
	now      func() time.Time // injectable for deterministic tests

	mu        sync.Mutex
	scrapers  map[string]Scraper
	targets   map[string]Target
	observers map[string][]Observer
	cache     map[string]cachedScrape
}

// NewManager returns a Manager that reuses scrapes for cooldown.
func NewManager(cooldown time.Duration) *Manager {
	return &Manager{
		cooldown:  cooldown,
		now:       time.Now,
		scrapers:  make(map[string]Scraper),
		targets:   make(map[string]Target),
		observers: make(map[string][]Observer),
		cache:     make(map[string]cachedScrape),
	}
}

// AddSource registers the scraper for a source ID.
func (m *Manager) AddSource(id string, s Scraper) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scrapers[id] = s
}

// AddTarget registers a pull target. Its source must already be added.
func (m *Manager) AddTarget(t Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scrapers[t.Source]; !ok {
		return fmt.Errorf("scraper: target %q: unknown source %q", t.ID, t.Source)
	}
	m.targets[t.ID] = t
	return nil
}

// Register subscribes o to scheduled pulls of targetID.
func (m *Manager) Register(targetID string, o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers[targetID] = append(m.observers[targetID], o)
}

// Unregister removes o from the subscribers of targetID.
func (m *Manager) Unregister(targetID string, o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obs := m.observers[targetID]
	for i, x := range obs {
		if x == o {
			m.observers[targetID] = append(obs[:i:i], obs[i+1:]...)
			break
		}
	}
	if len(m.observers[targetID]) == 0 {
		delete(m.observers, targetID)
	}
}

// Pull returns the current samples of a target. It blocks for at most the
// source's timeout and retry budget. A failed scrape is returned as an error
// and is never cached.
func (m *Manager) Pull(ctx context.Context, targetID string) ([]types.Sample, error) {
	m.mu.Lock()
	t, ok := m.targets[targetID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("scraper: unknown target %q", targetID)
	}
	s := m.scrapers[t.Source]
	c, hit := m.cache[t.Source]
	now := m.now()
	if hit && now.Sub(c.at) < m.cooldown {
		m.mu.Unlock()
		cacheHits.WithLabelValues(t.Source).Inc()
		return Project(c.mfs, t.Family, t.Dimensions), nil
	}
	m.mu.Unlock()

	pullsTotal.WithLabelValues(t.Source).Inc()
	start := time.Now()
	mfs, err := s.Scrape(ctx)
	pullDuration.WithLabelValues(t.Source).Observe(time.Since(start).Seconds())
	if err != nil {
		pullFailures.WithLabelValues(t.Source).Inc()
		return nil, err
	}

	m.mu.Lock()
	m.cache[t.Source] = cachedScrape{at: now, mfs: mfs}
	m.mu.Unlock()

	return Project(mfs, t.Family, t.Dimensions), nil
}

// PullScheduled pulls every target that has observers and delivers the
// result as a scheduled batch stamped with nowNs. Targets whose pull fails are
// skipped; their observers detect the gap on their own flush. It returns the
// number of batches delivered.
func (m *Manager) PullScheduled(ctx context.Context, nowNs int64) int {
	m.mu.Lock()
	subs := make(map[string][]Observer, len(m.observers))
	for id, obs := range m.observers {
		subs[id] = append([]Observer(nil), obs...)
	}
	m.mu.Unlock()

	delivered := 0
	for id, obs := range subs {
		samples, err := m.Pull(ctx, id)
		if err != nil {
			slog.Warn("scraper: scheduled pull failed", "target", id, "err", err)
			continue
		}
		batch := types.PullBatch{SourceID: id, TimestampNs: nowNs, Samples: samples, Scheduled: true}
		for _, o := range obs {
			o.OnDataPulled(batch)
			delivered++
		}
	}
	return delivered
}

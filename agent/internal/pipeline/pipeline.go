package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/obsidianstack/valuemetric/agent/internal/condition"
	"github.com/obsidianstack/valuemetric/agent/internal/config"
	"github.com/obsidianstack/valuemetric/agent/internal/scraper"
	"github.com/obsidianstack/valuemetric/agent/internal/valuemetric"
	"github.com/obsidianstack/valuemetric/pkg/types"
)

const (
	eventQueueSize = 4096
	finishTimeout  = 10 * time.Second
)

// ErrQueueFull is returned by Submit when the event queue is full.
var ErrQueueFull = errors.New("pipeline: event queue full")

// Sink receives encoded reports.
type Sink interface {
	Ship(report []byte)
}

type metric struct {
	index  int
	cfg    config.Metric
	prod   *valuemetric.Producer
	target string
}

// Pipeline owns every metric producer of the agent. Run is the only
// goroutine that touches producers; other goroutines hand over events with
// Submit.
type Pipeline struct {
	cfg     config.AgentConfig
	pulls   *scraper.Manager
	tracker *condition.Tracker
	sink    Sink
	log     *slog.Logger
	now     func() time.Time

	metrics     []*metric
	byEvent     map[string][]*metric
	byCondition map[string][]*metric
	conditions  []string
	events      chan types.Event
}

// New builds one producer per configured metric and registers the pull
// targets of metrics and conditions with pulls. Sources must already be
// added to pulls.
func New(cfg config.AgentConfig, pulls *scraper.Manager, sink Sink, logger *slog.Logger) (*Pipeline, error) {
	return newPipeline(cfg, pulls, sink, logger, time.Now)
}

func newPipeline(cfg config.AgentConfig, pulls *scraper.Manager, sink Sink, logger *slog.Logger, now func() time.Time) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		cfg:         cfg,
		pulls:       pulls,
		tracker:     condition.NewTracker(),
		sink:        sink,
		log:         logger,
		now:         now,
		byEvent:     make(map[string][]*metric),
		byCondition: make(map[string][]*metric),
		events:      make(chan types.Event, eventQueueSize),
	}

	for _, c := range cfg.Conditions {
		expr, err := condition.ParseExpr(c.Expr)
		if err != nil {
			return nil, fmt.Errorf("pipeline: condition %q: %w", c.ID, err)
		}
		p.tracker.Define(condition.Definition{ID: c.ID, Expr: expr, Dimensions: c.Dimensions})
		if err := pulls.AddTarget(scraper.Target{
			ID:         conditionTarget(c.ID),
			Source:     c.Source,
			Family:     c.Family,
			Dimensions: c.Dimensions,
		}); err != nil {
			return nil, fmt.Errorf("pipeline: condition %q: %w", c.ID, err)
		}
		p.conditions = append(p.conditions, c.ID)
	}

	startNs := now().UnixNano()
	for i, mc := range cfg.Metrics {
		m := &metric{index: i, cfg: mc}
		vc := valuemetric.Config{
			MetricID:      mc.ID,
			ConditionID:   mc.Condition,
			BucketSize:    mc.BucketSize,
			MaxDimensions: mc.MaxDimensions,
			Aggregation:   valuemetric.Aggregation(mc.Aggregation),
			Extractor:     valuemetric.FieldExtractor{Field: mc.ValueField},
			MaxFutureSkew: cfg.MaxClockSkew,
			Now:           func() int64 { return now().UnixNano() },
		}
		if c, ok := cfg.ConditionByID(mc.Condition); ok {
			vc.Sliced = len(c.Dimensions) > 0
		}
		if mc.Kind == config.KindPull {
			m.target = metricTarget(mc.ID)
			vc.PullTarget = m.target
			if err := pulls.AddTarget(scraper.Target{
				ID:         m.target,
				Source:     mc.Source,
				Family:     mc.Family,
				Dimensions: mc.Dimensions,
			}); err != nil {
				return nil, fmt.Errorf("pipeline: metric %q: %w", mc.ID, err)
			}
		}

		prod, err := valuemetric.New(vc, startNs, p.tracker, pulls, logger)
		if err != nil {
			return nil, fmt.Errorf("pipeline: metric %q: %w", mc.ID, err)
		}
		m.prod = prod

		p.metrics = append(p.metrics, m)
		if mc.Event != "" {
			p.byEvent[mc.Event] = append(p.byEvent[mc.Event], m)
		}
		if mc.Condition != "" {
			p.byCondition[mc.Condition] = append(p.byCondition[mc.Condition], m)
		}
	}
	return p, nil
}

// Submit queues a pushed event. It never blocks.
func (p *Pipeline) Submit(ev types.Event) error {
	select {
	case p.events <- ev:
		return nil
	default:
		eventsDropped.Inc()
		return ErrQueueFull
	}
}

// Run drives the producers until ctx is cancelled, then finishes them and
// ships a final report for each.
func (p *Pipeline) Run(ctx context.Context) error {
	p.start(ctx)

	tick := time.NewTicker(p.cfg.PullInterval)
	defer tick.Stop()
	dump := time.NewTicker(p.cfg.DumpInterval)
	defer dump.Stop()

	for {
		select {
		case <-ctx.Done():
			p.stop()
			return nil
		case ev := <-p.events:
			p.dispatch(ev)
		case <-tick.C:
			p.tick(ctx)
		case <-dump.C:
			p.dumpAll(ctx)
		}
	}
}

// start evaluates conditions once, takes baselines for ungated pull metrics
// and subscribes pull metrics to scheduled pulls.
func (p *Pipeline) start(ctx context.Context) {
	nowNs := p.now().UnixNano()
	p.pollConditions(ctx, nowNs)
	for _, m := range p.metrics {
		if m.target == "" {
			continue
		}
		if m.cfg.Condition == "" {
			m.prod.PrepareFirstBucket(ctx, nowNs)
		}
		p.pulls.Register(m.target, m.prod)
	}
	p.log.Info("pipeline: started", "metrics", len(p.metrics), "conditions", len(p.conditions))
}

func (p *Pipeline) stop() {
	for _, m := range p.metrics {
		if m.target != "" {
			p.pulls.Unregister(m.target, m.prod)
		}
	}

	// Events accepted before shutdown are still counted.
	for drained := false; !drained; {
		select {
		case ev := <-p.events:
			p.dispatch(ev)
		default:
			drained = true
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	for _, m := range p.metrics {
		m.prod.Finish(ctx)
	}
	p.dumpAll(ctx)
	p.log.Info("pipeline: stopped")
}

// tick re-evaluates conditions, delivers scheduled pulls and closes elapsed
// windows. When the buffered buckets outgrow MaxBufferedBytes every metric is
// dumped early.
func (p *Pipeline) tick(ctx context.Context) {
	nowNs := p.now().UnixNano()
	p.pollConditions(ctx, nowNs)
	p.pulls.PullScheduled(ctx, nowNs)

	total := 0
	for _, m := range p.metrics {
		m.prod.FlushIfNeeded(ctx, nowNs)
		total += m.prod.EstimateSize()
	}
	bufferedBytes.Set(float64(total))
	if total > p.cfg.MaxBufferedBytes {
		earlyDumps.Inc()
		p.log.Warn("pipeline: buffered buckets over limit, dumping early",
			"bytes", total, "limit", p.cfg.MaxBufferedBytes)
		p.dumpAll(ctx)
	}
}

func (p *Pipeline) pollConditions(ctx context.Context, nowNs int64) {
	for _, id := range p.conditions {
		samples, err := p.pulls.Pull(ctx, conditionTarget(id))
		if err != nil {
			p.log.Warn("pipeline: condition pull failed, keeping last state", "condition", id, "err", err)
			continue
		}
		ch := p.tracker.Update(id, samples)
		switch {
		case ch.OverallChanged:
			p.log.Info("pipeline: condition changed", "condition", id, "active", ch.Overall)
			for _, m := range p.byCondition[id] {
				m.prod.OnConditionChanged(ctx, ch.Overall, nowNs)
			}
		case ch.SlicesChanged:
			p.log.Debug("pipeline: sliced condition changed", "condition", id)
			for _, m := range p.byCondition[id] {
				m.prod.OnSlicedConditionMayChange(ctx, nowNs)
			}
		}
	}
}

func (p *Pipeline) dispatch(ev types.Event) {
	if ev.TimestampNs == 0 {
		ev.TimestampNs = p.now().UnixNano()
	}
	ms := p.byEvent[ev.Name]
	if len(ms) == 0 {
		eventsTotal.WithLabelValues("unmatched").Inc()
		return
	}
	eventsTotal.WithLabelValues("matched").Inc()
	for _, m := range ms {
		key := KeyFromFields(ev.Fields, m.cfg.Dimensions)
		// Events routed to a pull metric are readings of its target.
		m.prod.OnMatchedEvent(types.MatchedEvent{
			MatcherIndex:  m.index,
			Key:           key,
			Condition:     m.cfg.Condition == "" || p.tracker.Evaluate(m.cfg.Condition, key),
			Event:         ev,
			ScheduledPull: m.target != "",
		})
	}
}

func (p *Pipeline) dumpAll(ctx context.Context) {
	nowNs := p.now().UnixNano()
	for _, m := range p.metrics {
		b, err := m.prod.DumpReport(ctx, nowNs)
		if err != nil {
			p.log.Warn("pipeline: dump failed", "metric", m.cfg.ID, "err", err)
			continue
		}
		reportsTotal.Inc()
		p.sink.Ship(b)
	}
}

func conditionTarget(id string) string { return "condition/" + id }
func metricTarget(id string) string    { return "metric/" + id }

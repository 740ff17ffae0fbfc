package valuemetric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/obsidianstack/valuemetric/pkg/types"
)

// ErrFinished is returned by operations that cannot run after Finish.
var ErrFinished = errors.New("valuemetric: producer finished")

// ConditionEvaluator answers whether a sliced condition holds for one slice.
// The evaluator is owned by the caller and must outlive every Producer that
// holds it.
type ConditionEvaluator interface {
	Evaluate(conditionID string, key types.DimensionKey) bool
}

// Puller performs a synchronous snapshot pull. Timeouts and retries are the
// puller's business; an error is treated as an empty batch.
type Puller interface {
	Pull(ctx context.Context, targetID string) ([]types.Sample, error)
}

// Aggregator is the capability used by the event pipeline.
type Aggregator interface {
	OnConditionChanged(ctx context.Context, active bool, eventTimeNs int64)
	OnSlicedConditionMayChange(ctx context.Context, eventTimeNs int64)
	OnMatchedEvent(ev types.MatchedEvent)
	FlushIfNeeded(ctx context.Context, eventTimeNs int64)
	Finish(ctx context.Context)
	DumpReport(ctx context.Context, timestampNs int64) ([]byte, error)
	EstimateSize() int
	NotifyAppUpgrade(eventTimeNs int64, pkg string, uid int, version int64)
	NotifyAppRemoved(eventTimeNs int64, pkg string, uid int)
}

// PullObserver is the capability registered with the pull scheduler.
type PullObserver interface {
	OnDataPulled(batch types.PullBatch)
}

var (
	_ Aggregator   = (*Producer)(nil)
	_ PullObserver = (*Producer)(nil)
)

// Config describes one value metric.
type Config struct {
	MetricID string

	// PullTarget makes this a pull metric: values are deltas between two
	// snapshot readings of the target. Empty means a push metric.
	PullTarget string

	// ConditionID gates accumulation. Empty means always active.
	ConditionID string

	// Sliced asks the evaluator for a per-slice verdict in addition to the
	// overall condition state.
	Sliced bool

	BucketSize    time.Duration
	MaxDimensions int

	// SoftDimensions logs a warning when reached. Defaults to 80% of
	// MaxDimensions.
	SoftDimensions int

	Aggregation Aggregation

	// Extractor maps pushed events to values. Defaults to counting events.
	Extractor ValueExtractor

	// MaxFutureSkew drops samples stamped further than this past Now. Zero
	// only guards against timestamps the bucket arithmetic cannot hold.
	MaxFutureSkew time.Duration

	// Now returns the producer clock in nanoseconds. Finish closes the
	// partial window at Now. Defaults to the wall clock.
	Now func() int64
}

// maxBucketSize keeps bucket arithmetic clear of int64 overflow.
const maxBucketSize = time.Duration(math.MaxInt64 / 4)

// Producer aggregates one value metric into time buckets sliced by
// dimension key.
//
// A Producer has a single owner: none of its methods may be called
// concurrently. The owner also guarantees non-decreasing timestamps.
type Producer struct {
	cfg      Config
	eval     ConditionEvaluator
	puller   Puller
	log      *slog.Logger
	now      func() int64
	bucketNs int64

	startNs     int64
	bucketStart int64
	bucketNum   int64

	hasCondition bool
	condition    bool

	current map[types.DimensionKey]*interval
	next    map[types.DimensionKey]*interval
	past    map[types.DimensionKey][]types.ValueBucket

	// pending holds scheduled readings that share pendingNs until a reading
	// with another timestamp, or any other call, applies them as one batch.
	pending   []types.Sample
	pendingNs int64

	pastCount  int
	skipped    int64
	rejected   int64
	softWarned bool
	finished   bool
}

// New returns a Producer whose first bucket starts at startNs.
func New(cfg Config, startNs int64, eval ConditionEvaluator, puller Puller, logger *slog.Logger) (*Producer, error) {
	if cfg.MetricID == "" {
		return nil, errors.New("valuemetric: metric id is required")
	}
	if cfg.BucketSize <= 0 {
		return nil, fmt.Errorf("valuemetric: %s: bucket size must be positive", cfg.MetricID)
	}
	if cfg.BucketSize > maxBucketSize {
		return nil, fmt.Errorf("valuemetric: %s: bucket size %v is too large", cfg.MetricID, cfg.BucketSize)
	}
	if cfg.MaxFutureSkew < 0 {
		return nil, fmt.Errorf("valuemetric: %s: max future skew must not be negative", cfg.MetricID)
	}
	if cfg.MaxDimensions <= 0 {
		return nil, fmt.Errorf("valuemetric: %s: max dimensions must be positive", cfg.MetricID)
	}
	if cfg.PullTarget != "" && puller == nil {
		return nil, fmt.Errorf("valuemetric: %s: pull metric without puller", cfg.MetricID)
	}
	if cfg.Sliced && (cfg.ConditionID == "" || eval == nil) {
		return nil, fmt.Errorf("valuemetric: %s: sliced condition needs a condition id and evaluator", cfg.MetricID)
	}
	if cfg.SoftDimensions <= 0 || cfg.SoftDimensions > cfg.MaxDimensions {
		cfg.SoftDimensions = max(1, cfg.MaxDimensions*8/10)
	}
	if cfg.Aggregation == "" {
		cfg.Aggregation = AggSum
	}
	if !cfg.Aggregation.valid() {
		return nil, fmt.Errorf("valuemetric: %s: unknown aggregation %q", cfg.MetricID, cfg.Aggregation)
	}
	if cfg.Extractor == nil {
		cfg.Extractor = FieldExtractor{}
	}
	if cfg.Now == nil {
		cfg.Now = func() int64 { return time.Now().UnixNano() }
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Producer{
		cfg:          cfg,
		eval:         eval,
		puller:       puller,
		log:          logger.With("metric", cfg.MetricID),
		now:          cfg.Now,
		bucketNs:     int64(cfg.BucketSize),
		startNs:      startNs,
		bucketStart:  startNs,
		hasCondition: cfg.ConditionID != "",
		condition:    cfg.ConditionID == "",
		current:      make(map[types.DimensionKey]*interval),
		next:         make(map[types.DimensionKey]*interval),
		past:         make(map[types.DimensionKey][]types.ValueBucket),
	}, nil
}

// ID returns the metric ID.
func (p *Producer) ID() string { return p.cfg.MetricID }

// IsPull reports whether the metric is computed from snapshot pulls.
func (p *Producer) IsPull() bool { return p.cfg.PullTarget != "" }

// PullTarget returns the target pulled by a pull metric.
func (p *Producer) PullTarget() string { return p.cfg.PullTarget }

// PrepareFirstBucket takes the baseline reading of a pull metric whose gate
// is already open. Push metrics need no baseline.
func (p *Producer) PrepareFirstBucket(ctx context.Context, eventTimeNs int64) {
	if p.finished || !p.IsPull() {
		return
	}
	p.applyPending()
	if !p.gateOpen() {
		return
	}
	p.applyPull(p.pull(ctx), min(eventTimeNs, p.horizon()), true, true)
}

// OnDataPulled consumes a scheduled pull. Batches that arrive while the gate
// is closed are ignored.
func (p *Producer) OnDataPulled(batch types.PullBatch) {
	if p.finished {
		return
	}
	p.applyPending()
	if !p.gateOpen() || p.dropFuture(batch.TimestampNs) {
		return
	}
	p.applyPull(batch.Samples, batch.TimestampNs, true, true)
}

// OnMatchedEvent consumes one routed event. For push metrics the extracted
// value is added to the event's slice. A pull metric only takes events marked
// as scheduled pulls: each is a reading of its slice, and readings that share
// a timestamp are applied together as one partial batch.
func (p *Producer) OnMatchedEvent(ev types.MatchedEvent) {
	if p.finished {
		return
	}
	if p.IsPull() && !ev.ScheduledPull {
		p.log.Debug("valuemetric: ignoring unscheduled event for pull metric", "event", ev.Event.Name)
		return
	}
	t := ev.Event.TimestampNs
	if t < p.bucketStart {
		p.dropLate(t)
		return
	}
	if p.dropFuture(t) {
		return
	}

	v, err := p.cfg.Extractor.Extract(ev.Event)
	if err != nil {
		malformedEvents.WithLabelValues(p.cfg.MetricID).Inc()
		p.log.Debug("valuemetric: dropping malformed event", "key", ev.Key, "err", err)
		return
	}

	if p.IsPull() {
		p.queueReading(types.Sample{Key: ev.Key, Value: v}, t)
		return
	}

	p.flushWindows(t)
	if !ev.Condition || !p.gateOpen() {
		return
	}
	if iv, ok := p.admit(ev.Key, p.current); ok {
		iv.add(v)
	}
}

// NotifyAppUpgrade is reserved for package lifecycle handling.
func (p *Producer) NotifyAppUpgrade(eventTimeNs int64, pkg string, uid int, version int64) {}

// NotifyAppRemoved is reserved for package lifecycle handling.
func (p *Producer) NotifyAppRemoved(eventTimeNs int64, pkg string, uid int) {}

func (p *Producer) gateOpen() bool {
	return !p.hasCondition || p.condition
}

// sliceActive reports whether key may accumulate right now.
func (p *Producer) sliceActive(key types.DimensionKey) bool {
	if !p.gateOpen() {
		return false
	}
	if !p.cfg.Sliced {
		return true
	}
	return p.eval.Evaluate(p.cfg.ConditionID, key)
}

func (p *Producer) bucketEnd() int64 {
	return p.bucketStart + p.bucketNs
}

// queueReading adds a scheduled reading to the pending batch. A reading with
// a new timestamp applies the batch collected so far first.
func (p *Producer) queueReading(s types.Sample, t int64) {
	if len(p.pending) > 0 && t != p.pendingNs {
		p.applyPending()
	}
	if !p.gateOpen() {
		return
	}
	p.pending = append(p.pending, s)
	p.pendingNs = t
}

// applyPending feeds the pending readings as one batch. The batch is partial:
// slices without a reading keep their open pairs. Slice activity is taken
// from the evaluator at this point.
func (p *Producer) applyPending() {
	if len(p.pending) == 0 {
		return
	}
	samples, t := p.pending, p.pendingNs
	p.pending = nil
	if p.gateOpen() {
		p.applyPull(samples, t, false, true)
	}
}

// horizon is the latest timestamp a sample may carry.
func (p *Producer) horizon() int64 {
	limit := int64(math.MaxInt64) - 2*p.bucketNs
	if skew := int64(p.cfg.MaxFutureSkew); skew > 0 {
		if now := p.now(); now < limit-skew {
			limit = now + skew
		}
	}
	return limit
}

func (p *Producer) dropFuture(t int64) bool {
	if t <= p.horizon() {
		return false
	}
	futureSamples.WithLabelValues(p.cfg.MetricID).Inc()
	p.log.Debug("valuemetric: dropping sample from the future",
		"ts", t, "horizon", p.horizon(), "bucket", p.bucketNum)
	return true
}

func (p *Producer) dropLate(t int64) {
	lateEvents.WithLabelValues(p.cfg.MetricID).Inc()
	p.log.Debug("valuemetric: dropping late sample",
		"ts", t, "bucket_start", p.bucketStart, "bucket", p.bucketNum)
}

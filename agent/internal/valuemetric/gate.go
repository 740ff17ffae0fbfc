package valuemetric

import (
	"context"

	"github.com/obsidianstack/valuemetric/pkg/types"
)

// OnConditionChanged moves the overall gate. For pull metrics an opening
// transition takes the baseline reading and a closing one takes the final
// reading, so the window only counts the active span. A notification that
// does not change the state is ignored.
func (p *Producer) OnConditionChanged(ctx context.Context, active bool, eventTimeNs int64) {
	if p.finished || !p.hasCondition || active == p.condition {
		return
	}
	p.applyPending()
	// A transition stamped before the current window still moves the gate.
	eventTimeNs = max(min(eventTimeNs, p.horizon()), p.bucketStart)
	p.log.Debug("valuemetric: condition changed", "active", active, "ts", eventTimeNs)

	if !p.IsPull() {
		p.flushWindows(eventTimeNs)
		p.condition = active
		return
	}
	p.condition = active
	p.applyPull(p.pull(ctx), eventTimeNs, true, true)
}

// OnSlicedConditionMayChange splits the windows of slices whose own condition
// may have flipped while the overall gate stayed open. One reading closes the
// pairs of every slice and reopens them for the slices that are still active.
func (p *Producer) OnSlicedConditionMayChange(ctx context.Context, eventTimeNs int64) {
	if p.finished {
		return
	}
	p.applyPending()
	eventTimeNs = max(min(eventTimeNs, p.horizon()), p.bucketStart)
	if !p.IsPull() || !p.gateOpen() {
		p.flushWindows(eventTimeNs)
		return
	}
	p.applyPull(p.pull(ctx), eventTimeNs, true, true)
}

// pull reads the metric's target. Failures come back as an empty batch so
// every open pair is tainted.
func (p *Producer) pull(ctx context.Context) []types.Sample {
	samples, err := p.puller.Pull(ctx, p.cfg.PullTarget)
	if err != nil {
		pullFailures.WithLabelValues(p.cfg.MetricID).Inc()
		p.log.Warn("valuemetric: pull failed, open intervals are tainted",
			"target", p.cfg.PullTarget, "err", err)
		return nil
	}
	return samples
}

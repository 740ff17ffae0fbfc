package valuemetric

import (
	"context"

	"github.com/obsidianstack/valuemetric/pkg/types"
)

// FlushIfNeeded closes every window that ended at or before eventTimeNs. A
// pull metric with an open gate first takes a boundary reading so the closing
// window gets its end sample and the next window its start sample.
func (p *Producer) FlushIfNeeded(ctx context.Context, eventTimeNs int64) {
	if p.finished {
		return
	}
	p.applyPending()
	eventTimeNs = min(eventTimeNs, p.horizon())
	if eventTimeNs < p.bucketEnd() {
		return
	}
	if p.IsPull() && p.gateOpen() {
		p.applyPull(p.pull(ctx), eventTimeNs, true, true)
		return
	}
	p.flushWindows(eventTimeNs)
}

// applyPull feeds one reading per sample at time t.
//
// Open pairs are closed by their slice's sample. When full is set the batch is
// the complete result of a pull, so an open pair missing from it is tainted.
// When reopen is set, active slices start a new pair at the same reading.
//
// A reading in [end, end+B) both closes the current window and starts the
// next one. A reading taken later than that spans more than one window and
// taints every open pair.
func (p *Producer) applyPull(samples []types.Sample, t int64, full, reopen bool) {
	if t < p.bucketStart {
		p.dropLate(t)
		return
	}
	end := p.bucketEnd()
	stale := t >= end+p.bucketNs

	present := make(map[types.DimensionKey]struct{}, len(samples))
	for _, s := range samples {
		present[s.Key] = struct{}{}
		if iv, ok := p.current[s.Key]; ok && !stale {
			iv.closeAt(s.Value)
		}
	}
	for key, iv := range p.current {
		if !iv.open {
			continue
		}
		if _, ok := present[key]; stale || (full && !ok) {
			iv.taint()
		}
	}

	dst := p.current
	switch {
	case stale:
		p.flushWindows(t)
		dst = p.current
	case t >= end:
		dst = p.next
	}
	if reopen {
		for _, s := range samples {
			if !p.sliceActive(s.Key) {
				continue
			}
			if iv, ok := p.admit(s.Key, dst); ok {
				iv.openAt(s.Value)
			}
		}
	}
	if t >= end && !stale {
		p.flushWindows(t)
	}
}

// flushWindows closes windows in order until the one containing t is
// current. Runs of empty windows are skipped in one step; their bucket
// numbers are consumed but nothing is emitted for them.
func (p *Producer) flushWindows(t int64) {
	for t >= p.bucketEnd() {
		if len(p.current) == 0 && len(p.next) == 0 {
			n := (t - p.startNs) / p.bucketNs
			p.bucketNum = n
			p.bucketStart = p.startNs + n*p.bucketNs
			return
		}
		p.closeWindow()
	}
}

// closeWindow turns every current interval into a bucket, carries the
// still-active slices that saw data into next and makes next current.
func (p *Producer) closeWindow() {
	start, end := p.bucketStart, p.bucketEnd()
	for key, iv := range p.current {
		if iv.open {
			// No closing reading reached this window.
			iv.taint()
		}
		if iv.tainted {
			p.skipped++
			taintedWindows.WithLabelValues(p.cfg.MetricID).Inc()
			p.log.Debug("valuemetric: skipping tainted window", "key", key, "bucket", p.bucketNum)
		} else if v, ok := iv.value(p.cfg.Aggregation); ok {
			p.past[key] = append(p.past[key], types.ValueBucket{
				StartNs:   start,
				EndNs:     end,
				Value:     v,
				BucketNum: p.bucketNum,
			})
			p.pastCount++
			bucketsEmitted.WithLabelValues(p.cfg.MetricID).Inc()
		}
		if iv.seen && p.sliceActive(key) {
			if _, ok := p.next[key]; !ok {
				p.next[key] = &interval{}
			}
		}
	}

	p.current, p.next = p.next, p.current
	clear(p.next)
	p.bucketStart = end
	p.bucketNum++
	if p.tracked() < p.cfg.SoftDimensions {
		p.softWarned = false
	}
}

// Finish takes a closing reading, emits the partial window with its nominal
// bounds and turns every later mutating call into a no-op. Buckets stay
// available to DumpReport.
func (p *Producer) Finish(ctx context.Context) {
	if p.finished {
		return
	}
	p.applyPending()
	now := min(p.now(), p.horizon())
	if p.IsPull() && p.gateOpen() {
		p.applyPull(p.pull(ctx), now, true, false)
	} else {
		p.flushWindows(now)
	}
	if len(p.current) > 0 {
		p.closeWindow()
	}
	clear(p.current)
	clear(p.next)
	p.finished = true
	p.log.Debug("valuemetric: finished", "bucket", p.bucketNum, "buckets", p.pastCount)
}

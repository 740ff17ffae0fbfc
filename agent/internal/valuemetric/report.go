package valuemetric

import (
	"context"
	"fmt"
	"sort"
	"unsafe"

	"github.com/obsidianstack/valuemetric/pkg/report"
	"github.com/obsidianstack/valuemetric/pkg/types"
)

// sliceOverhead approximates the per-key cost of the bucket maps: map entry,
// key string header and interval or slice header.
const sliceOverhead = 96

var bucketFootprint = int(unsafe.Sizeof(types.ValueBucket{}))

// DumpReport closes the windows that ended by timestampNs, encodes every
// finalized bucket and forgets them. Two dumps in a row with nothing in
// between return a report followed by an empty one.
func (p *Producer) DumpReport(ctx context.Context, timestampNs int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("valuemetric: dump %s: %w", p.cfg.MetricID, err)
	}
	p.FlushIfNeeded(ctx, timestampNs)

	r := p.buildReport(timestampNs)
	clear(p.past)
	p.pastCount = 0
	p.skipped = 0
	p.rejected = 0

	p.log.Debug("valuemetric: report dumped",
		"dimensions", len(r.Dimensions), "buckets", r.BucketCount(),
		"skipped", r.SkippedBucketCount, "guardrail_dropped", r.GuardrailDroppedCount)
	return report.Encode(r), nil
}

func (p *Producer) buildReport(timestampNs int64) *report.Report {
	keys := make([]types.DimensionKey, 0, len(p.past))
	for k := range p.past {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })

	r := &report.Report{
		MetricID:              p.cfg.MetricID,
		DumpTimestampNs:       timestampNs,
		Dimensions:            make([]report.Dimension, 0, len(keys)),
		SkippedBucketCount:    p.skipped,
		GuardrailDroppedCount: p.rejected,
	}
	for _, k := range keys {
		r.Dimensions = append(r.Dimensions, report.Dimension{Key: k, Buckets: p.past[k]})
	}
	return r
}

// EstimateSize returns an upper bound of the memory held by the producer in
// bytes without walking the buckets.
func (p *Producer) EstimateSize() int {
	return p.pastCount*bucketFootprint + (len(p.past)+len(p.current)+len(p.next))*sliceOverhead
}

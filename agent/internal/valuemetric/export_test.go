package valuemetric

import (
	"sort"

	"github.com/obsidianstack/valuemetric/pkg/types"
)

// inspector exposes accumulation state to tests.
type inspector interface {
	currentKeys() []types.DimensionKey
	nextKeys() []types.DimensionKey
	pastBuckets(key types.DimensionKey) []types.ValueBucket
	isTainted(key types.DimensionKey) bool
	windowStart() int64
	windowNum() int64
}

var _ inspector = (*Producer)(nil)

func sortedKeys(m map[types.DimensionKey]*interval) []types.DimensionKey {
	out := make([]types.DimensionKey, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (p *Producer) currentKeys() []types.DimensionKey { return sortedKeys(p.current) }
func (p *Producer) nextKeys() []types.DimensionKey    { return sortedKeys(p.next) }

func (p *Producer) pastBuckets(key types.DimensionKey) []types.ValueBucket { return p.past[key] }

func (p *Producer) isTainted(key types.DimensionKey) bool {
	iv, ok := p.current[key]
	return ok && iv.tainted
}

func (p *Producer) windowStart() int64 { return p.bucketStart }
func (p *Producer) windowNum() int64   { return p.bucketNum }

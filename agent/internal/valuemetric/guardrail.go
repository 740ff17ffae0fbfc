package valuemetric

import "github.com/obsidianstack/valuemetric/pkg/types"

// admit returns the interval of key in dst, reserving it if needed. A key
// that is not tracked yet is admitted only while current and next together
// hold fewer than MaxDimensions distinct keys; otherwise nothing changes.
func (p *Producer) admit(key types.DimensionKey, dst map[types.DimensionKey]*interval) (*interval, bool) {
	if iv, ok := dst[key]; ok {
		return iv, true
	}
	_, inCur := p.current[key]
	_, inNext := p.next[key]
	if !inCur && !inNext && p.tracked() >= p.cfg.MaxDimensions {
		p.rejected++
		guardrailRejections.WithLabelValues(p.cfg.MetricID).Inc()
		p.log.Debug("valuemetric: dimension limit reached, dropping sample",
			"key", key, "limit", p.cfg.MaxDimensions)
		return nil, false
	}

	iv := &interval{}
	dst[key] = iv
	if n := p.tracked(); n >= p.cfg.SoftDimensions && !p.softWarned {
		p.softWarned = true
		p.log.Warn("valuemetric: dimension count approaching limit",
			"tracked", n, "soft_limit", p.cfg.SoftDimensions, "limit", p.cfg.MaxDimensions)
	}
	return iv, true
}

// tracked is |current ∪ next|.
func (p *Producer) tracked() int {
	n := len(p.current)
	for k := range p.next {
		if _, ok := p.current[k]; !ok {
			n++
		}
	}
	return n
}

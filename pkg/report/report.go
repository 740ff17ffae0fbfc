package report

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/obsidianstack/valuemetric/pkg/types"
)

// Field numbers of the report message tree. They are part of the wire
// contract with the server and must never be renumbered.
const (
	fieldMetricID        protowire.Number = 1
	fieldDumpTimestampNs protowire.Number = 2
	fieldDimension       protowire.Number = 3
	fieldSkippedBuckets  protowire.Number = 4
	fieldGuardrailDrops  protowire.Number = 5

	fieldDimLabel       protowire.Number = 1
	fieldDimFingerprint protowire.Number = 2
	fieldDimBucket      protowire.Number = 3

	fieldLabelName  protowire.Number = 1
	fieldLabelValue protowire.Number = 2

	fieldBucketStartNs protowire.Number = 1
	fieldBucketEndNs   protowire.Number = 2
	fieldBucketNum     protowire.Number = 3
	fieldBucketValue   protowire.Number = 4
)

// ErrFingerprint is returned by Decode when a dimension's stored fingerprint
// does not match its labels.
var ErrFingerprint = errors.New("report: dimension fingerprint mismatch")

// Report is the decoded form of one dump of a value metric.
type Report struct {
	MetricID        string
	DumpTimestampNs int64
	Dimensions      []Dimension

	// SkippedBucketCount counts slice windows suppressed because their
	// interval was tainted. The affected slices are absent from Dimensions.
	SkippedBucketCount int64

	// GuardrailDroppedCount counts samples rejected by the cardinality limit.
	GuardrailDroppedCount int64
}

// Dimension holds all buckets of one slice, ordered by bucket number.
type Dimension struct {
	Key     types.DimensionKey
	Buckets []types.ValueBucket
}

// BucketCount returns the number of buckets across all dimensions.
func (r *Report) BucketCount() int {
	var n int
	for _, d := range r.Dimensions {
		n += len(d.Buckets)
	}
	return n
}

// Encode renders r in the tag/length wire format.
func Encode(r *Report) []byte {
	var b []byte
	if r.MetricID != "" {
		b = protowire.AppendTag(b, fieldMetricID, protowire.BytesType)
		b = protowire.AppendString(b, r.MetricID)
	}
	b = protowire.AppendTag(b, fieldDumpTimestampNs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.DumpTimestampNs))
	for i := range r.Dimensions {
		b = protowire.AppendTag(b, fieldDimension, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeDimension(&r.Dimensions[i]))
	}
	if r.SkippedBucketCount != 0 {
		b = protowire.AppendTag(b, fieldSkippedBuckets, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.SkippedBucketCount))
	}
	if r.GuardrailDroppedCount != 0 {
		b = protowire.AppendTag(b, fieldGuardrailDrops, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.GuardrailDroppedCount))
	}
	return b
}

func encodeDimension(d *Dimension) []byte {
	var b []byte
	for _, l := range d.Key.Labels() {
		var lb []byte
		lb = protowire.AppendTag(lb, fieldLabelName, protowire.BytesType)
		lb = protowire.AppendString(lb, l.Name)
		lb = protowire.AppendTag(lb, fieldLabelValue, protowire.BytesType)
		lb = protowire.AppendString(lb, l.Value)

		b = protowire.AppendTag(b, fieldDimLabel, protowire.BytesType)
		b = protowire.AppendBytes(b, lb)
	}
	b = protowire.AppendTag(b, fieldDimFingerprint, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, d.Key.Hash())
	for _, bk := range d.Buckets {
		b = protowire.AppendTag(b, fieldDimBucket, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeBucket(bk))
	}
	return b
}

func encodeBucket(bk types.ValueBucket) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldBucketStartNs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(bk.StartNs))
	b = protowire.AppendTag(b, fieldBucketEndNs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(bk.EndNs))
	b = protowire.AppendTag(b, fieldBucketNum, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(bk.BucketNum))
	b = protowire.AppendTag(b, fieldBucketValue, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(bk.Value))
	return b
}

// Decode parses a report produced by Encode. Unknown fields are skipped so
// newer agents can add fields without breaking older servers.
func Decode(b []byte) (*Report, error) {
	r := &Report{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == fieldMetricID && typ == protowire.BytesType:
			r.MetricID = string(v)
		case num == fieldDumpTimestampNs && typ == protowire.VarintType:
			r.DumpTimestampNs = int64(x)
		case num == fieldDimension && typ == protowire.BytesType:
			d, err := decodeDimension(v)
			if err != nil {
				return err
			}
			r.Dimensions = append(r.Dimensions, d)
		case num == fieldSkippedBuckets && typ == protowire.VarintType:
			r.SkippedBucketCount = int64(x)
		case num == fieldGuardrailDrops && typ == protowire.VarintType:
			r.GuardrailDroppedCount = int64(x)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func decodeDimension(b []byte) (Dimension, error) {
	var (
		d           Dimension
		labels      []string
		fingerprint uint64
		hasFP       bool
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == fieldDimLabel && typ == protowire.BytesType:
			var name, value string
			err := walk(v, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
				if typ != protowire.BytesType {
					return nil
				}
				switch num {
				case fieldLabelName:
					name = string(v)
				case fieldLabelValue:
					value = string(v)
				}
				return nil
			})
			if err != nil {
				return err
			}
			labels = append(labels, name, value)
		case num == fieldDimFingerprint && typ == protowire.Fixed64Type:
			fingerprint, hasFP = x, true
		case num == fieldDimBucket && typ == protowire.BytesType:
			bk, err := decodeBucket(v)
			if err != nil {
				return err
			}
			d.Buckets = append(d.Buckets, bk)
		}
		return nil
	})
	if err != nil {
		return Dimension{}, err
	}
	d.Key = types.KeyOf(labels...)
	if hasFP && d.Key.Hash() != fingerprint {
		return Dimension{}, fmt.Errorf("%w: %s", ErrFingerprint, d.Key)
	}
	return d, nil
}

func decodeBucket(b []byte) (types.ValueBucket, error) {
	var bk types.ValueBucket
	err := walk(b, func(num protowire.Number, typ protowire.Type, _ []byte, x uint64) error {
		switch {
		case num == fieldBucketStartNs && typ == protowire.VarintType:
			bk.StartNs = int64(x)
		case num == fieldBucketEndNs && typ == protowire.VarintType:
			bk.EndNs = int64(x)
		case num == fieldBucketNum && typ == protowire.VarintType:
			bk.BucketNum = int64(x)
		case num == fieldBucketValue && typ == protowire.Fixed64Type:
			bk.Value = math.Float64frombits(x)
		}
		return nil
	})
	return bk, err
}

// walk iterates over the fields of one message. For bytes fields v holds the
// payload; for varint and fixed fields x holds the raw value.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("report: decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		var (
			v []byte
			x uint64
		)
		switch typ {
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			x, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var x32 uint32
			x32, n = protowire.ConsumeFixed32(b)
			x = uint64(x32)
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("report: decode field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(num, typ, v, x); err != nil {
			return err
		}
	}
	return nil
}

// Package valuemetric aggregates numeric observations into fixed-size time
// buckets sliced by dimension key.
//
// A Producer tracks one metric. Push metrics sum (or min/max/avg) the values
// carried by events. Pull metrics difference pairs of snapshot readings taken
// by a Puller at condition transitions, at bucket boundaries and on schedule.
//
// Accumulation is gated by an optional condition, overall and optionally per
// slice. Windows with unreliable input (a missing or decreasing reading, a
// reading spanning more than one window) are tainted and left out of the
// report instead of being reported as zero. The number of tracked slices is
// capped by a hard guard rail.
//
// Finalized buckets are kept until DumpReport encodes them with pkg/report.
package valuemetric

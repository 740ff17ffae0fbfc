// Package types defines shared Go types used by both the agent and server.
// These are the canonical in-memory representations of value-metric data:
// dimension keys, pulled samples, matched events and finalized buckets,
// separate from the report wire format in pkg/report.
package types

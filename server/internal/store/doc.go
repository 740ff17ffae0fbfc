// Package store keeps the reports received from agents in memory, grouped by
// metric ID, with TTL eviction and a per-metric cap.
package store

// Package api implements the HTTP REST API of the report server.
//
// New(store) returns an http.Handler that serves:
//
//	GET /api/v1/health        live metric/report counts, summed skipped and guard-rail counters
//	GET /api/v1/metrics       one summary per live metric ([]MetricSummary)
//	GET /api/v1/metrics/{id}  all live reports of a metric merged per dimension; 404 if unknown or stale
//
// All endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. JSON types are defined in types.go.
package api

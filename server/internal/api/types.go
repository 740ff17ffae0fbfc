package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State                 string `json:"state"` // "ok" or "idle" when nothing is live
	MetricCount           int    `json:"metric_count"`
	ReportCount           int    `json:"report_count"`
	SkippedBucketCount    int64  `json:"skipped_bucket_count"`
	GuardrailDroppedCount int64  `json:"guardrail_dropped_count"`
}

// MetricSummary is one entry in GET /api/v1/metrics.
type MetricSummary struct {
	MetricID              string `json:"metric_id"`
	ReportCount           int    `json:"report_count"`
	DimensionCount        int    `json:"dimension_count"`
	BucketCount           int    `json:"bucket_count"`
	SkippedBucketCount    int64  `json:"skipped_bucket_count"`
	GuardrailDroppedCount int64  `json:"guardrail_dropped_count"`
	LastSeen              string `json:"last_seen"` // RFC3339
}

// MetricResponse is the payload for GET /api/v1/metrics/{id}: every live
// report of the metric merged per dimension.
type MetricResponse struct {
	MetricSummary
	Dimensions []DimensionResponse `json:"dimensions"`
}

// DimensionResponse is one dimension key with its buckets in report order.
type DimensionResponse struct {
	Key     string            `json:"key"`
	Labels  map[string]string `json:"labels"`
	Buckets []BucketResponse  `json:"buckets"`
}

// BucketResponse is one completed bucket.
type BucketResponse struct {
	BucketNum int64   `json:"bucket_num"`
	StartNs   int64   `json:"start_ns"`
	EndNs     int64   `json:"end_ns"`
	Value     float64 `json:"value"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

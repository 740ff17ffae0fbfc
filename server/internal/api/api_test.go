package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/obsidianstack/valuemetric/pkg/report"
	"github.com/obsidianstack/valuemetric/pkg/types"
	"github.com/obsidianstack/valuemetric/server/internal/api"
	"github.com/obsidianstack/valuemetric/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

func newStore(reps ...*report.Report) *store.Store {
	st := store.New(5*time.Minute, 16)
	for _, r := range reps {
		st.Put(r)
	}
	return st
}

func bucket(num int64, value float64) types.ValueBucket {
	return types.ValueBucket{StartNs: num * 60, EndNs: (num + 1) * 60, Value: value, BucketNum: num}
}

func rep(id string, skipped, dropped int64, dims ...report.Dimension) *report.Report {
	return &report.Report{MetricID: id, Dimensions: dims, SkippedBucketCount: skipped, GuardrailDroppedCount: dropped}
}

func dim(app string, buckets ...types.ValueBucket) report.Dimension {
	return report.Dimension{Key: types.KeyOf("app", app), Buckets: buckets}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	h := api.New(newStore())
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "idle" || resp.MetricCount != 0 {
		t.Errorf("got %+v, want idle with no metrics", resp)
	}
}

func TestHealth_SumsCounters(t *testing.T) {
	h := api.New(newStore(
		rep("cpu", 2, 0, dim("A", bucket(0, 1))),
		rep("cpu", 1, 3),
		rep("bytes", 0, 4, dim("A", bucket(0, 5))),
	))

	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)

	want := api.HealthResponse{State: "ok", MetricCount: 2, ReportCount: 3, SkippedBucketCount: 3, GuardrailDroppedCount: 7}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("health mismatch (-want +got):\n%s", diff)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := api.New(newStore())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/health", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/metrics --------------------------------------------------------

func TestListMetrics_Empty(t *testing.T) {
	h := api.New(newStore())
	rr := get(t, h, "/api/v1/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []api.MetricSummary
	decode(t, rr, &resp)
	if resp == nil || len(resp) != 0 {
		t.Errorf("got %v, want an empty array", resp)
	}
}

func TestListMetrics_Summaries(t *testing.T) {
	h := api.New(newStore(
		rep("cpu", 1, 0, dim("A", bucket(0, 1), bucket(1, 2)), dim("B", bucket(0, 3))),
		rep("cpu", 0, 2, dim("A", bucket(2, 4))),
		rep("bytes", 0, 0),
	))

	var resp []api.MetricSummary
	decode(t, get(t, h, "/api/v1/metrics"), &resp)
	if len(resp) != 2 {
		t.Fatalf("len: got %d, want 2", len(resp))
	}
	// Sorted by metric ID.
	if resp[0].MetricID != "bytes" || resp[1].MetricID != "cpu" {
		t.Fatalf("order: got %q, %q", resp[0].MetricID, resp[1].MetricID)
	}
	cpu := resp[1]
	if cpu.ReportCount != 2 || cpu.DimensionCount != 2 || cpu.BucketCount != 4 {
		t.Errorf("cpu counts: got %+v", cpu)
	}
	if cpu.SkippedBucketCount != 1 || cpu.GuardrailDroppedCount != 2 {
		t.Errorf("cpu counters: got skipped=%d dropped=%d, want 1 and 2", cpu.SkippedBucketCount, cpu.GuardrailDroppedCount)
	}
	if _, err := time.Parse(time.RFC3339, cpu.LastSeen); err != nil {
		t.Errorf("LastSeen %q is not RFC3339: %v", cpu.LastSeen, err)
	}
}

func TestListMetrics_MethodNotAllowed(t *testing.T) {
	h := api.New(newStore())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/metrics", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/metrics/{id} ---------------------------------------------------

func TestGetMetric_MergesReports(t *testing.T) {
	h := api.New(newStore(
		rep("cpu", 0, 0, dim("B", bucket(0, 3)), dim("A", bucket(0, 1))),
		rep("cpu", 0, 0, dim("A", bucket(1, 2))),
	))

	rr := get(t, h, "/api/v1/metrics/cpu")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.MetricResponse
	decode(t, rr, &resp)

	want := []api.DimensionResponse{
		{
			Key:    "app=A",
			Labels: map[string]string{"app": "A"},
			Buckets: []api.BucketResponse{
				{BucketNum: 0, StartNs: 0, EndNs: 60, Value: 1},
				{BucketNum: 1, StartNs: 60, EndNs: 120, Value: 2},
			},
		},
		{
			Key:     "app=B",
			Labels:  map[string]string{"app": "B"},
			Buckets: []api.BucketResponse{{BucketNum: 0, StartNs: 0, EndNs: 60, Value: 3}},
		},
	}
	if diff := cmp.Diff(want, resp.Dimensions); diff != "" {
		t.Errorf("dimensions mismatch (-want +got):\n%s", diff)
	}
	if resp.MetricID != "cpu" || resp.ReportCount != 2 {
		t.Errorf("summary: got %+v", resp.MetricSummary)
	}
}

func TestGetMetric_BucketsOrderedAcrossRequeuedReports(t *testing.T) {
	// A report retried after a transient failure arrives after its successor.
	h := api.New(newStore(
		rep("cpu", 0, 0, dim("A", bucket(2, 3))),
		rep("cpu", 0, 0, dim("A", bucket(0, 1), bucket(1, 2))),
	))

	var resp api.MetricResponse
	decode(t, get(t, h, "/api/v1/metrics/cpu"), &resp)
	if len(resp.Dimensions) != 1 {
		t.Fatalf("dimensions: got %d, want 1", len(resp.Dimensions))
	}
	var nums []int64
	for _, b := range resp.Dimensions[0].Buckets {
		nums = append(nums, b.BucketNum)
	}
	if diff := cmp.Diff([]int64{0, 1, 2}, nums); diff != "" {
		t.Errorf("bucket order mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMetric_KeysWithSameRendering(t *testing.T) {
	h := api.New(newStore(rep("cpu", 0, 0,
		report.Dimension{Key: types.KeyOf("app", "A,uid=1"), Buckets: []types.ValueBucket{bucket(0, 1)}},
		report.Dimension{Key: types.KeyOf("app", "A", "uid", "1"), Buckets: []types.ValueBucket{bucket(0, 2)}},
	)))

	var resp api.MetricResponse
	decode(t, get(t, h, "/api/v1/metrics/cpu"), &resp)
	if len(resp.Dimensions) != 2 {
		t.Errorf("dimensions: got %d, want 2 distinct slices", len(resp.Dimensions))
	}
	if resp.DimensionCount != 2 {
		t.Errorf("DimensionCount: got %d, want 2", resp.DimensionCount)
	}
}

func TestGetMetric_NotFound(t *testing.T) {
	h := api.New(newStore())
	rr := get(t, h, "/api/v1/metrics/missing")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestGetMetric_BarePathLists(t *testing.T) {
	h := api.New(newStore(rep("cpu", 0, 0)))
	var resp []api.MetricSummary
	decode(t, get(t, h, "/api/v1/metrics/"), &resp)
	if len(resp) != 1 || resp[0].MetricID != "cpu" {
		t.Errorf("got %+v, want the cpu summary", resp)
	}
}

func TestGetMetric_MethodNotAllowed(t *testing.T) {
	h := api.New(newStore(rep("cpu", 0, 0)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/v1/metrics/cpu", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

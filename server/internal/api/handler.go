package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/obsidianstack/valuemetric/pkg/types"
	"github.com/obsidianstack/valuemetric/server/internal/store"
)

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads reports from the store and returns JSON responses.
type Handler struct {
	store *store.Store
	mux   *http.ServeMux
}

// New creates a Handler wired to the given report store and registers all routes.
func New(st *store.Store) http.Handler {
	h := &Handler{store: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/metrics", h.listMetrics)
	h.mux.HandleFunc("/api/v1/metrics/", h.getMetric) // subtree, extracts {id}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: live metric and report counts plus the
// summed skipped and guard-rail counters.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{State: "idle"}
	for _, id := range h.store.Metrics() {
		entries, _ := h.store.Get(id)
		s := summarize(id, entries)
		resp.MetricCount++
		resp.ReportCount += s.ReportCount
		resp.SkippedBucketCount += s.SkippedBucketCount
		resp.GuardrailDroppedCount += s.GuardrailDroppedCount
	}
	if resp.MetricCount > 0 {
		resp.State = "ok"
	}
	jsonResp(w, http.StatusOK, resp)
}

// listMetrics returns GET /api/v1/metrics: one summary per live metric.
func (h *Handler) listMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ids := h.store.Metrics()
	out := make([]MetricSummary, 0, len(ids))
	for _, id := range ids {
		if entries, ok := h.store.Get(id); ok {
			out = append(out, summarize(id, entries))
		}
	}
	jsonResp(w, http.StatusOK, out)
}

// getMetric returns GET /api/v1/metrics/{id}; 404 if unknown or stale.
func (h *Handler) getMetric(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/metrics/")
	if id == "" {
		h.listMetrics(w, r)
		return
	}

	entries, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "metric not found")
		return
	}
	jsonResp(w, http.StatusOK, toMetricResponse(id, entries))
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// summarize totals the live reports of one metric. entries are oldest first.
func summarize(id string, entries []*store.Entry) MetricSummary {
	s := MetricSummary{MetricID: id, ReportCount: len(entries)}
	keys := make(map[types.DimensionKey]struct{})
	for _, e := range entries {
		s.BucketCount += e.Report.BucketCount()
		s.SkippedBucketCount += e.Report.SkippedBucketCount
		s.GuardrailDroppedCount += e.Report.GuardrailDroppedCount
		for _, d := range e.Report.Dimensions {
			keys[d.Key] = struct{}{}
		}
	}
	s.DimensionCount = len(keys)
	if n := len(entries); n > 0 {
		s.LastSeen = entries[n-1].ReceivedAt.UTC().Format(time.RFC3339)
	}
	return s
}

// toMetricResponse merges the buckets of every report per dimension key.
// Dimensions are ordered by key and buckets by bucket number, whatever order
// the reports arrived in.
func toMetricResponse(id string, entries []*store.Entry) MetricResponse {
	byKey := make(map[types.DimensionKey]*DimensionResponse)
	var keys []types.DimensionKey
	for _, e := range entries {
		for _, d := range e.Report.Dimensions {
			dr, ok := byKey[d.Key]
			if !ok {
				labels := make(map[string]string)
				for _, l := range d.Key.Labels() {
					labels[l.Name] = l.Value
				}
				dr = &DimensionResponse{Key: d.Key.String(), Labels: labels, Buckets: []BucketResponse{}}
				byKey[d.Key] = dr
				keys = append(keys, d.Key)
			}
			for _, b := range d.Buckets {
				dr.Buckets = append(dr.Buckets, BucketResponse{
					BucketNum: b.BucketNum,
					StartNs:   b.StartNs,
					EndNs:     b.EndNs,
					Value:     b.Value,
				})
			}
		}
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	dims := make([]DimensionResponse, 0, len(keys))
	for _, k := range keys {
		dr := byKey[k]
		sort.SliceStable(dr.Buckets, func(i, j int) bool { return dr.Buckets[i].BucketNum < dr.Buckets[j].BucketNum })
		dims = append(dims, *dr)
	}

	return MetricResponse{MetricSummary: summarize(id, entries), Dimensions: dims}
}

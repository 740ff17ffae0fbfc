package ingest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/obsidianstack/valuemetric/pkg/types"
)

const maxBodyBytes = 1 << 20

// Submitter accepts pushed events without blocking.
type Submitter interface {
	Submit(ev types.Event) error
}

// EventRequest is one pushed event.
type EventRequest struct {
	Name        string         `json:"name"`
	TimestampNs int64          `json:"timestamp_ns,omitempty"` // 0 means arrival time
	Fields      map[string]any `json:"fields"`
}

// BatchRequest is the body of POST /v1/events.
type BatchRequest struct {
	Events []EventRequest `json:"events"`
}

// BatchResponse reports how many events were queued.
type BatchResponse struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the push ingestion endpoint.
type Handler struct {
	sub     Submitter
	maxSkew time.Duration
	now     func() time.Time
	mux     *http.ServeMux
}

// New returns the ingestion handler. Events stamped more than maxSkew past
// the local clock are rejected; zero disables the check.
func New(sub Submitter, maxSkew time.Duration) http.Handler {
	return newHandler(sub, maxSkew, time.Now)
}

func newHandler(sub Submitter, maxSkew time.Duration, now func() time.Time) *Handler {
	h := &Handler{sub: sub, maxSkew: maxSkew, now: now, mux: http.NewServeMux()}
	h.mux.HandleFunc("/v1/events", h.events)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// events handles POST /v1/events. Events are validated as a whole before any
// is queued; a full queue drops the remainder and answers 429.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var req BatchRequest
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	limit := h.now().Add(h.maxSkew).UnixNano()
	for _, ev := range req.Events {
		if ev.Name == "" {
			jsonErr(w, http.StatusBadRequest, "event name is required")
			return
		}
		if ev.TimestampNs < 0 {
			jsonErr(w, http.StatusBadRequest, "timestamp_ns must not be negative")
			return
		}
		if h.maxSkew > 0 && ev.TimestampNs > limit {
			jsonErr(w, http.StatusBadRequest, "timestamp_ns is too far in the future")
			return
		}
	}

	var resp BatchResponse
	for _, ev := range req.Events {
		err := h.sub.Submit(types.Event{Name: ev.Name, TimestampNs: ev.TimestampNs, Fields: ev.Fields})
		if err != nil {
			resp.Dropped = len(req.Events) - resp.Accepted
			slog.Warn("ingest: dropping events", "dropped", resp.Dropped, "err", err)
			break
		}
		resp.Accepted++
	}

	code := http.StatusAccepted
	if resp.Dropped > 0 {
		code = http.StatusTooManyRequests
	}
	jsonResp(w, code, resp)
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

package ingest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/obsidianstack/valuemetric/pkg/types"
)

type collect struct{ events []types.Event }

func (c *collect) Submit(ev types.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func TestEvents_ClockSkew(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	tests := []struct {
		name    string
		maxSkew time.Duration
		ts      int64
		want    int
	}{
		{"within skew", time.Minute, now.Add(time.Minute).UnixNano(), http.StatusAccepted},
		{"past skew", time.Minute, now.Add(time.Minute).UnixNano() + 1, http.StatusBadRequest},
		{"max int64", time.Minute, 1<<63 - 1, http.StatusBadRequest},
		{"check disabled", 0, now.Add(time.Hour).UnixNano(), http.StatusAccepted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &collect{}
			body := `{"events":[{"name":"a","timestamp_ns":` + strconv.FormatInt(tc.ts, 10) + `}]}`
			rr := httptest.NewRecorder()
			newHandler(c, tc.maxSkew, clock).ServeHTTP(rr,
				httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body)))
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tc.want, rr.Body.String())
			}
			if queued := len(c.events) == 1; queued != (tc.want == http.StatusAccepted) {
				t.Errorf("queued %d events", len(c.events))
			}
		})
	}
}

package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/obsidianstack/valuemetric/agent/internal/config"
	"github.com/obsidianstack/valuemetric/pkg/types"
)

// exposition is a realistic per-process CPU counter exposition.
const exposition = `
# HELP process_cpu_seconds_total CPU time consumed per process.
# TYPE process_cpu_seconds_total counter
process_cpu_seconds_total{app="A",pid="10"} 12.5
process_cpu_seconds_total{app="A",pid="11"} 2.5
process_cpu_seconds_total{app="B",pid="20"} 4

# HELP app_foreground Whether the app is in the foreground.
# TYPE app_foreground gauge
app_foreground{app="A"} 1
app_foreground{app="B"} 0
`

func sortSamples() cmp.Option {
	return cmpopts.SortSlices(func(a, b types.Sample) bool { return a.Key.String() < b.Key.String() })
}

func TestPromScraper_Scrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(exposition))
	}))
	defer srv.Close()

	s := &promScraper{
		src:    config.Source{ID: "node", Endpoint: srv.URL},
		client: srv.Client(),
	}

	mfs, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}

	got := Project(mfs, "process_cpu_seconds_total", []string{"app"})
	want := []types.Sample{
		{Key: types.KeyOf("app", "A"), Value: 15},
		{Key: types.KeyOf("app", "B"), Value: 4},
	}
	if diff := cmp.Diff(want, got, sortSamples(), cmp.AllowUnexported(types.DimensionKey{})); diff != "" {
		t.Errorf("Project by app (-want +got):\n%s", diff)
	}
}

func TestProject_NoDimensionsSumsFamily(t *testing.T) {
	mfs, err := parseFamilies(strings.NewReader(exposition))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := Project(mfs, "process_cpu_seconds_total", nil)
	if len(got) != 1 || !got[0].Key.IsEmpty() || got[0].Value != 19 {
		t.Errorf("Project without dimensions = %+v, want one empty-key sample of 19", got)
	}
	if got := Project(mfs, "missing_family", nil); got != nil {
		t.Errorf("Project of missing family = %+v, want nil", got)
	}
}

func TestPromScraper_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(exposition))
	}))
	defer srv.Close()

	s := &promScraper{
		src:    config.Source{ID: "flaky", Endpoint: srv.URL, Retries: 1, Timeout: 5 * time.Second},
		client: srv.Client(),
	}
	if _, err := s.Scrape(context.Background()); err != nil {
		t.Fatalf("Scrape() after retry: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
}

func TestPromScraper_ConnectFailure(t *testing.T) {
	s := &promScraper{
		src:    config.Source{ID: "down", Endpoint: "http://127.0.0.1:1"},
		client: &http.Client{},
	}
	if _, err := s.Scrape(context.Background()); err == nil {
		t.Fatal("Scrape() should fail when the endpoint is unreachable")
	}
}

func TestAuthRoundTripper_APIKey(t *testing.T) {
	t.Setenv("SRC_KEY", "k1")
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Scrape-Key")
		_, _ = w.Write([]byte(exposition))
	}))
	defer srv.Close()

	src := config.Source{
		ID:       "auth",
		Endpoint: srv.URL,
		Auth:     config.AuthConfig{Mode: "apikey", Header: "X-Scrape-Key", KeyEnv: "SRC_KEY"},
	}
	s, err := New(src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Scrape(context.Background()); err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if got != "k1" {
		t.Errorf("api key header = %q, want k1", got)
	}
}

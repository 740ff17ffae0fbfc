// Package scraper is the pull transport of the agent. Each configured source
// is a Prometheus text exposition endpoint; a Scraper fetches and parses it
// into metric families, and Project turns one family into per-slice samples
// keyed by the requested labels.
//
// Manager (manager.go) owns all scrapers and serves pulls by Target (source +
// family + dimension labels). Scrapes are cached per source for a short
// cool-down so producers sharing an endpoint cost one fetch. Observers
// registered for a target receive scheduled batches from PullScheduled.
//
// Authentication (mTLS, API key, bearer token, basic) is handled by the shared
// authRoundTripper in base.go; timeouts and retries are owned here, not by the
// callers.
package scraper

// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: full config tree parsed from YAML
//   - AgentConfig: server_endpoint, ship_interval, dump_interval, buffer_size,
//     pull_interval, max_buffered_bytes, http_listen, pull_cooldown,
//     sources [], conditions [], metrics [], server_auth
//   - Source: id, endpoint, timeout, retries, auth, tls
//   - Condition: id, source, family, expr ("value > 0"), dimensions
//   - Metric: id, kind (push|pull), source/family or event/value_field,
//     dimensions, condition, bucket_size, max_dimensions, aggregation
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none); Key(), Token() and
//     Password() resolve secrets from environment variables
//
// Load(path) reads the YAML file, applies defaults (1m buckets, 800
// dimensions, sum aggregation, 5m dump, 15s ship, 1000 buffer), then
// validates required fields, enums and cross references.
//
// Watch(ctx, path, onChange) uses fsnotify to detect saves and calls onChange
// with the newly parsed Config. ChangedMetrics lists the metric definitions
// that differ between two configs.
package config

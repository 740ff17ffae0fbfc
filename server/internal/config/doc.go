// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - GRPCPort             port for the report receiver (default 50051)
//   - HTTPPort             port for the REST API (default 8080)
//   - Auth.Mode            "apikey" or "none"; "mtls" accepted
//   - Auth.KeyEnv          environment variable holding the expected API key
//   - Auth.Header          gRPC metadata/HTTP header name (default "x-api-key")
//   - Reports.TTL          how long a received report is kept (default 30m)
//   - Reports.MaxPerMetric reports kept per metric (default 64)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config

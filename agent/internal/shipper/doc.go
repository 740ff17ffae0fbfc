// Package shipper sends encoded value-metric reports to the report server
// via gRPC (ReportService.SendReport unary RPC, see pkg/report).
//
// Shipper.Ship() is non-blocking: reports are placed in an in-memory channel
// (default capacity 1000). When the buffer is full the oldest entry is
// evicted so the latest data is always preserved.
//
// Shipper.Run() sends the buffer every ship_interval, reconnecting with
// truncated exponential backoff (1s→60s, ±25% jitter) on connection or send
// errors. Permanent gRPC errors (Unauthenticated, PermissionDenied,
// InvalidArgument) discard the report immediately rather than retrying. On
// shutdown the remaining buffer gets one final delivery attempt.
//
// Auth: mTLS via credentials.NewTLS(), API key via gRPC metadata header,
// or insecure (plaintext) for local development.
//
// The dialFn field is injectable for testing (net.Listen on 127.0.0.1:0).
package shipper

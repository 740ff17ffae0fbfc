// Package auth provides API key authentication for the report server.
//
// APIKeyInterceptor(mode, header, key) guards the gRPC receiver and
// APIKeyMiddleware(mode, header, key, next) guards the REST API. Both read the
// key from the named header.
//
// When mode != "apikey" or key == "", everything passes through (local
// development with auth disabled). An incorrect or absent key is rejected
// immediately: codes.Unauthenticated over gRPC, 401 over HTTP.
package auth

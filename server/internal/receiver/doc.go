// Package receiver implements report.Server, the gRPC endpoint that accepts
// encoded value-metric reports from agents.
//
// SendReport decodes the payload with report.Decode; a malformed payload or
// a missing metric ID is answered with codes.InvalidArgument, which agents
// treat as permanent. Accepted reports go to the store. Authentication is
// enforced upstream by the gRPC server interceptor (see package auth).
package receiver

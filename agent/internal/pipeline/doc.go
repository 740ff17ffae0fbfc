// Package pipeline wires configured metrics, conditions and pull targets
// together and drives them from a single goroutine.
//
// Run serialises everything that mutates a producer: pushed events, condition
// evaluation, scheduled pulls, bucket flushes and periodic dumps. Encoded
// reports go to a Sink, normally the shipper.
package pipeline

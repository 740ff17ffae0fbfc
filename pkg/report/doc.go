// Package report defines the wire format of value-metric reports and the gRPC
// method that carries them from agent to server.
//
// A report is a tag/length encoded message built with protowire:
//
//	Report     { 1: metric_id, 2: dump_timestamp_ns, 3: repeated Dimension,
//	             4: skipped_bucket_count, 5: guardrail_dropped_count }
//	Dimension  { 1: repeated Label, 2: fingerprint (fixed64), 3: repeated Bucket }
//	Label      { 1: name, 2: value }
//	Bucket     { 1: start_ns, 2: end_ns, 3: bucket_num, 4: value (double) }
//
// The fingerprint is the xxhash of the dimension key and is checked on Decode.
//
// rpc.go registers ReportService/SendReport by hand (no generated stubs): the
// request is a wrapperspb.BytesValue holding the encoded report and the
// response is emptypb.Empty.
package report

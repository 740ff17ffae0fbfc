// Package ingest exposes the HTTP endpoint that accepts pushed events.
//
// POST /v1/events takes {"events":[{"name":..., "timestamp_ns":..., "fields":{...}}]}
// and hands each event to the pipeline queue. Numbers in fields are kept as
// json.Number so both values and dimension labels keep their exact text.
package ingest

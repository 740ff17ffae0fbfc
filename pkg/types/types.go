package types

// Sample is one reading returned by a pull: the raw value of a counter-like
// series for one dimension slice at pull time.
type Sample struct {
	Key   DimensionKey
	Value float64
}

// PullBatch is the full result of one pull of a source.
type PullBatch struct {
	SourceID    string
	TimestampNs int64
	Samples     []Sample

	// Scheduled is true when the pull was issued by the periodic scheduler
	// rather than by a condition transition.
	Scheduled bool
}

// Event is a pushed observation before matching. Fields holds the event
// payload; values are numbers, numeric strings or plain strings.
type Event struct {
	Name        string
	TimestampNs int64
	Fields      map[string]any
}

// MatchedEvent is an Event routed to one metric producer by the dispatcher.
type MatchedEvent struct {
	// MatcherIndex is the index of the matcher that accepted the event.
	MatcherIndex int

	// Key is the dimension slice the event belongs to.
	Key DimensionKey

	// Condition is the sliced condition state evaluated by the dispatcher at
	// match time. Metrics without a condition receive true.
	Condition bool

	Event Event

	// ScheduledPull marks events that carry pulled data delivered through
	// the dispatcher instead of a PullBatch.
	ScheduledPull bool
}

// ValueBucket is one finalized window for one dimension slice.
type ValueBucket struct {
	StartNs   int64
	EndNs     int64
	Value     float64
	BucketNum int64
}

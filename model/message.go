package model

import "time"

// MessageRecord is one raw email belonging to a thread.
type MessageRecord struct {
	ThreadID string
	// Timestamp is an ordering hint supplied by ingestion; it may be zero.
	Timestamp time.Time
	Body      string
}

// ThreadDocument is the aggregated per-thread row consumed by the selector.
type ThreadDocument struct {
	ThreadID   string
	EmailsText string
	// Summary is the optional reference summary kept for training datasets.
	Summary string
}

// Envelope wraps a record alongside an optional error encountered while reading.
type Envelope struct {
	Record MessageRecord
	Err    error
}

// ThreadSelection holds decoded message texts in extracted-date order.
type ThreadSelection []string

// Job is one assembled thread queued for summarization.
type Job struct {
	ThreadID string
	Text     string
	// Hash fingerprints Text for the summary cache.
	Hash     string
	Messages int
}

// Digest is a produced summary on its way to the sinks.
type Digest struct {
	ThreadID  string
	Hash      string
	Summary   string
	Status    string
	Messages  int
	Cached    bool
	CreatedAt time.Time
}

// Thread is every row of one thread id, in dataset order.
type Thread struct {
	ID        string
	Documents []ThreadDocument
}

package model

import "time"

type DateStatus int

const (
	DateNoInput DateStatus = iota
	DateNoMatch
	DateUnparseable
	DateFound
)

func (s DateStatus) String() string {
	switch s {
	case DateFound:
		return "found"
	case DateNoMatch:
		return "no_match"
	case DateUnparseable:
		return "unparseable"
	default:
		return "no_input"
	}
}

// ExtractedDate is either a concrete timestamp (Status == DateFound) or an
// unknown date with the reason it is unknown.
type ExtractedDate struct {
	Time   time.Time
	Status DateStatus
	// Source is the captured text the date was parsed from, if any.
	Source string
	Err    error
}

func (d ExtractedDate) Known() bool {
	return d.Status == DateFound
}

func (d ExtractedDate) String() string {
	if !d.Known() {
		return "unknown"
	}
	return d.Time.Format(time.RFC3339)
}

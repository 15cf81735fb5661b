package catalog

import "time"

// CycleReport describes one fetch cycle after it resolved
type CycleReport struct {
	Seq       uint64
	Topic     Topic
	Page      int
	Offset    int
	NumFound  int
	Returned  int
	Valid     int
	Dropped   int
	Duration  time.Duration
	Err       error
	Kind      ErrorKind
	Discarded bool
}

// Outcome is a short label for the cycle result
func (r CycleReport) Outcome() string {
	switch {
	case r.Discarded:
		return "discarded"
	case r.Kind == ErrorTransport:
		return "transport"
	case r.Kind == ErrorEmpty:
		return "empty"
	default:
		return "ready"
	}
}

// Observer is told about every resolved cycle. Calls happen on the fetch goroutine
// outside the controller lock, so implementations must be safe for concurrent use.
type Observer interface {
	CycleSettled(CycleReport)
	CycleDiscarded(CycleReport)
}

package catalog

import "slices"

// NoBooksMessage is reported when the first page of a topic has no valid books
const NoBooksMessage = "No books found for this topic."

// ErrorKind tells a soft empty result apart from a failed fetch
type ErrorKind string

const (
	ErrorNone      ErrorKind = ""
	ErrorTransport ErrorKind = "transport"
	ErrorEmpty     ErrorKind = "empty"
)

// State is the controller state derived from a snapshot
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Snapshot is the complete observable state of a Controller.
// A snapshot is never modified after it has been published.
type Snapshot struct {
	Topic      Topic     `json:"topic"`
	Page       int       `json:"page"`
	Items      []Book    `json:"items"`
	TotalPages int       `json:"totalPages"`
	IsLoading  bool      `json:"isLoading"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  ErrorKind `json:"errorKind,omitempty"`
	Seq        uint64    `json:"seq"`
}

// State derives the state machine position of the snapshot
func (s Snapshot) State() State {
	switch {
	case s.IsLoading:
		return StateLoading
	case s.Seq == 0:
		return StateIdle
	case s.Error != "":
		return StateError
	default:
		return StateReady
	}
}

// Offset is the search offset of the snapshot's page
func (s Snapshot) Offset() int {
	return Offset(s.Page)
}

func (s Snapshot) clone() Snapshot {
	s.Items = slices.Clone(s.Items)
	if s.Items == nil {
		s.Items = []Book{}
	}
	return s
}

// Offset converts a 1-based page into a search offset
func Offset(page int) int {
	return (page - 1) * PageSize
}

// TotalPages is ceil(numFound / PageSize); negative counts yield 0
func TotalPages(numFound int) int {
	if numFound <= 0 {
		return 0
	}
	return (numFound + PageSize - 1) / PageSize
}

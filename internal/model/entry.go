package model

import (
	"fmt"
	"net/url"
)

// State is the lifecycle state of a frontier entry.
// Transitions are monotonic: pending -> in-flight -> done | failed.
type State int

const (
	// StatePending is an entry waiting for a worker.
	StatePending State = iota
	// StateInFlight is an entry a worker is fetching.
	StateInFlight
	// StateDone is an entry that was fetched and written to disk.
	StateDone
	// StateFailed is an entry whose fetch or write failed.
	StateFailed
)

// String returns the text form of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in-flight"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StatePending, StateInFlight, StateDone, StateFailed} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(text))
}

// Outcome is what a worker learned about a successfully mirrored URL.
type Outcome struct {
	// Kind is the final classification, using the server's content type.
	Kind Kind

	// LocalPath is the slash-separated path relative to the output root.
	LocalPath string

	// FinalURL is the URL after redirects, when it differs from the
	// requested one. References in the body are relative to it.
	FinalURL string

	// StatusCode is the HTTP status of the final response.
	StatusCode int

	// ContentType is the declared Content-Type header.
	ContentType string

	// Size is the number of bytes written.
	Size int64
}

// Entry is the frontier's record for one normalized URL.
type Entry struct {
	Ref   Reference
	State State

	// Outcome is filled in when the entry is done.
	Outcome Outcome

	// Err is the failure cause when the entry failed.
	Err error
}

// Artifact is a fetched resource on its way to disk.
// The crawler owns it until it is written; afterwards the file is the
// source of truth.
type Artifact struct {
	LocalPath string
	Body      []byte
	Source    *url.URL
	Kind      Kind
}

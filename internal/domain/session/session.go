package session

import (
	"errors"

	"github.com/vocalsense/vocalsense/internal/domain/analysis"
	"github.com/vocalsense/vocalsense/internal/domain/capture"
)

// State enum
type State string

const (
	StateIdle       State = "idle"
	StateCapturing  State = "capturing"
	StateSubmitting State = "submitting"
	StateResult     State = "result"
	StateError      State = "error"
)

var ErrInvalidTransition = errors.New("invalid session transition")

// Session is the complete state of one user's analysis interaction. It is a
// value: Apply never mutates its input, it returns the next session.
type Session struct {
	State          State                 `json:"state"`
	ActivePayload  *capture.AudioPayload `json:"active_payload,omitempty"` // Capturing/Submitting only
	CaptureNote    string                `json:"capture_note,omitempty"`   // last local validation failure
	LastResult     *analysis.ScoreResult `json:"last_result,omitempty"`    // Result only
	LastError      string                `json:"last_error,omitempty"`     // Error only
	PersistWarning string                `json:"persist_warning,omitempty"`
	History        []analysis.Record     `json:"history"`
}

// New returns a fresh Idle session.
func New() Session {
	return Session{State: StateIdle}
}

// Event is the tagged set of things that can happen to a session.
type Event interface{ isEvent() }

// EventStart begins capture: Idle -> Capturing.
type EventStart struct{}

// EventCaptured attaches a valid payload; stays in Capturing until submit.
type EventCaptured struct{ Payload capture.AudioPayload }

// EventCaptureFailed records a local validation failure: Capturing -> Capturing.
type EventCaptureFailed struct{ Reason string }

// EventSubmit confirms submission: Capturing -> Submitting. Guarded on a
// payload being present.
type EventSubmit struct{}

// EventScored carries a validated scoring response: Submitting -> Result.
// PersistWarning is set when the history store or archive failed; the result
// is still shown.
type EventScored struct {
	Result         analysis.ScoreResult
	PersistWarning string
}

// EventSubmitFailed carries the raw failure detail: Submitting -> Error.
type EventSubmitFailed struct{ Reason string }

// EventRetry clears the error: Error -> Capturing.
type EventRetry struct{}

// EventNewAnalysis discards the prior result: Result -> Capturing.
type EventNewAnalysis struct{}

// EventReset drops any captured payload and note, staying in Capturing.
type EventReset struct{}

func (EventStart) isEvent()         {}
func (EventCaptured) isEvent()      {}
func (EventCaptureFailed) isEvent() {}
func (EventSubmit) isEvent()        {}
func (EventScored) isEvent()        {}
func (EventSubmitFailed) isEvent()  {}
func (EventRetry) isEvent()         {}
func (EventNewAnalysis) isEvent()   {}
func (EventReset) isEvent()         {}

// Apply is the transition function (Session, Event) -> Session. Illegal
// transitions return ErrInvalidTransition and the session unchanged. There is
// deliberately no Submitting -> Submitting edge: a second submission cannot
// start while one is in flight.
func Apply(s Session, ev Event) (Session, error) {
	switch e := ev.(type) {
	case EventStart:
		if s.State != StateIdle {
			return s, ErrInvalidTransition
		}
		s.State = StateCapturing

	case EventCaptured:
		if s.State != StateCapturing {
			return s, ErrInvalidTransition
		}
		p := e.Payload
		s.ActivePayload = &p
		s.CaptureNote = ""

	case EventCaptureFailed:
		if s.State != StateCapturing {
			return s, ErrInvalidTransition
		}
		s.CaptureNote = e.Reason

	case EventSubmit:
		if s.State != StateCapturing {
			return s, ErrInvalidTransition
		}
		if s.ActivePayload == nil {
			return s, capture.ErrNoPayload
		}
		s.State = StateSubmitting
		s.CaptureNote = ""

	case EventScored:
		if s.State != StateSubmitting {
			return s, ErrInvalidTransition
		}
		r := e.Result
		s.State = StateResult
		s.LastResult = &r
		s.ActivePayload = nil
		s.PersistWarning = e.PersistWarning

	case EventSubmitFailed:
		if s.State != StateSubmitting {
			return s, ErrInvalidTransition
		}
		s.State = StateError
		s.LastError = e.Reason
		s.ActivePayload = nil

	case EventRetry:
		if s.State != StateError {
			return s, ErrInvalidTransition
		}
		s.State = StateCapturing
		s.LastError = ""

	case EventNewAnalysis:
		if s.State != StateResult {
			return s, ErrInvalidTransition
		}
		s.State = StateCapturing
		s.LastResult = nil
		s.PersistWarning = ""

	case EventReset:
		if s.State != StateCapturing {
			return s, ErrInvalidTransition
		}
		s.ActivePayload = nil
		s.CaptureNote = ""

	default:
		return s, ErrInvalidTransition
	}
	return s, nil
}

// Abandonable reports whether the session may be dropped without side
// effects. Submitting must always resolve to Result or Error first, and
// Capturing may hold the microphone.
func (s Session) Abandonable() bool {
	switch s.State {
	case StateIdle, StateResult, StateError:
		return true
	}
	return false
}

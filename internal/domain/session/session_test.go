package session

import (
	"errors"
	"testing"

	"github.com/vocalsense/vocalsense/internal/domain/analysis"
	"github.com/vocalsense/vocalsense/internal/domain/capture"
)

func payload() capture.AudioPayload {
	return capture.AudioPayload{
		Source:          capture.SourceUpload,
		MIMEType:        "audio/wav",
		SizeBytes:       10,
		DurationSeconds: capture.DurationUnknown,
		DisplayName:     "a.wav",
	}
}

func result() analysis.ScoreResult {
	return analysis.ScoreResult{RiskLevel: analysis.RiskLow, Score: 0.12}
}

func TestHappyPath(t *testing.T) {
	s := New()
	if s.State != StateIdle {
		t.Fatalf("initial state = %q", s.State)
	}
	var err error
	if s, err = Apply(s, EventStart{}); err != nil || s.State != StateCapturing {
		t.Fatalf("start: state=%q err=%v", s.State, err)
	}
	if s, err = Apply(s, EventCaptured{Payload: payload()}); err != nil || s.State != StateCapturing {
		t.Fatalf("captured: state=%q err=%v", s.State, err)
	}
	if s.ActivePayload == nil {
		t.Fatal("active payload missing after capture")
	}
	if s, err = Apply(s, EventSubmit{}); err != nil || s.State != StateSubmitting {
		t.Fatalf("submit: state=%q err=%v", s.State, err)
	}
	if s, err = Apply(s, EventScored{Result: result()}); err != nil || s.State != StateResult {
		t.Fatalf("scored: state=%q err=%v", s.State, err)
	}
	if s.ActivePayload != nil {
		t.Error("active payload should be cleared in Result")
	}
	if s.LastResult == nil || s.LastResult.Score != 0.12 {
		t.Errorf("last result = %+v", s.LastResult)
	}
	if s, err = Apply(s, EventNewAnalysis{}); err != nil || s.State != StateCapturing {
		t.Fatalf("new analysis: state=%q err=%v", s.State, err)
	}
	if s.LastResult != nil {
		t.Error("prior result should be cleared")
	}
}

func TestErrorAndRetry(t *testing.T) {
	s := New()
	s, _ = Apply(s, EventStart{})
	s, _ = Apply(s, EventCaptured{Payload: payload()})
	s, _ = Apply(s, EventSubmit{})
	s, err := Apply(s, EventSubmitFailed{Reason: "500 - boom"})
	if err != nil || s.State != StateError {
		t.Fatalf("submit failed: state=%q err=%v", s.State, err)
	}
	if s.LastError != "500 - boom" {
		t.Errorf("last error = %q", s.LastError)
	}
	s, err = Apply(s, EventRetry{})
	if err != nil || s.State != StateCapturing {
		t.Fatalf("retry: state=%q err=%v", s.State, err)
	}
	if s.LastError != "" {
		t.Errorf("last error should be cleared, got %q", s.LastError)
	}
}

func TestCaptureFailureStaysLocal(t *testing.T) {
	s := New()
	s, _ = Apply(s, EventStart{})
	s, err := Apply(s, EventCaptureFailed{Reason: "file too large"})
	if err != nil {
		t.Fatal(err)
	}
	if s.State != StateCapturing {
		t.Fatalf("capture failure must not leave Capturing, got %q", s.State)
	}
	if s.CaptureNote != "file too large" {
		t.Errorf("capture note = %q", s.CaptureNote)
	}
}

func TestSubmitWithoutPayload(t *testing.T) {
	s := New()
	s, _ = Apply(s, EventStart{})
	next, err := Apply(s, EventSubmit{})
	if !errors.Is(err, capture.ErrNoPayload) {
		t.Fatalf("got %v, want ErrNoPayload", err)
	}
	if next.State != StateCapturing {
		t.Errorf("state changed on guarded submit: %q", next.State)
	}
}

func TestIllegalTransitions(t *testing.T) {
	submitting := Session{State: StateSubmitting}
	cases := []struct {
		name string
		s    Session
		ev   Event
	}{
		{"start from capturing", Session{State: StateCapturing}, EventStart{}},
		{"submit while submitting", submitting, EventSubmit{}},
		{"capture while submitting", submitting, EventCaptured{Payload: payload()}},
		{"retry from result", Session{State: StateResult}, EventRetry{}},
		{"new analysis from error", Session{State: StateError}, EventNewAnalysis{}},
		{"scored from idle", Session{State: StateIdle}, EventScored{Result: result()}},
		{"reset from result", Session{State: StateResult}, EventReset{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Apply(tc.s, tc.ev)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("got %v, want ErrInvalidTransition", err)
			}
			if next.State != tc.s.State {
				t.Errorf("state mutated on illegal transition: %q -> %q", tc.s.State, next.State)
			}
		})
	}
}

func TestPersistWarningDoesNotBlockResult(t *testing.T) {
	s := Session{State: StateSubmitting}
	s, err := Apply(s, EventScored{Result: result(), PersistWarning: "history save failed"})
	if err != nil || s.State != StateResult {
		t.Fatalf("state=%q err=%v", s.State, err)
	}
	if s.PersistWarning == "" {
		t.Error("persist warning lost")
	}
}

func TestAbandonable(t *testing.T) {
	for state, want := range map[State]bool{
		StateIdle:       true,
		StateResult:     true,
		StateError:      true,
		StateCapturing:  false,
		StateSubmitting: false,
	} {
		if got := (Session{State: state}).Abandonable(); got != want {
			t.Errorf("Abandonable(%q) = %v, want %v", state, got, want)
		}
	}
}

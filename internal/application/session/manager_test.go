package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vocalsense/vocalsense/internal/application"
	appcapture "github.com/vocalsense/vocalsense/internal/application/capture"
	"github.com/vocalsense/vocalsense/internal/application/history"
	"github.com/vocalsense/vocalsense/internal/domain/analysis"
	domcapture "github.com/vocalsense/vocalsense/internal/domain/capture"
	domain "github.com/vocalsense/vocalsense/internal/domain/session"
	"github.com/vocalsense/vocalsense/internal/infra/db/memory"
)

// ---- stubs ----

type stubScorer struct {
	mu      sync.Mutex
	res     analysis.ScoreResult
	err     error
	block   chan struct{} // when set, Score waits until closed
	calls   int
	lastPay domcapture.AudioPayload
}

func (s *stubScorer) Score(ctx context.Context, p domcapture.AudioPayload) (analysis.ScoreResult, error) {
	s.mu.Lock()
	s.calls++
	s.lastPay = p
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	return s.res, s.err
}

type stubStream struct {
	closed    chan struct{}
	closeOnce sync.Once
}

func newStubStream() *stubStream { return &stubStream{closed: make(chan struct{})} }

func (s *stubStream) Read(p []byte) (int, error) {
	<-s.closed
	return 0, io.EOF
}

func (s *stubStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type stubDevice struct{ err error }

func (d stubDevice) Open(ctx context.Context) (domcapture.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return newStubStream(), nil
}

type manualTicker struct{ ch chan time.Time }

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

type failingStore struct{ inner analysis.Store }

func (f failingStore) List(ctx context.Context, tenant string) ([]analysis.Record, error) {
	return f.inner.List(ctx, tenant)
}
func (f failingStore) Create(ctx context.Context, tenant string, d analysis.Draft) (analysis.Record, error) {
	return analysis.Record{}, errors.New("history store down")
}
func (f failingStore) Delete(ctx context.Context, tenant string, id analysis.RecordID) error {
	return f.inner.Delete(ctx, tenant, id)
}

type harness struct {
	m      *Manager
	scorer *stubScorer
	store  analysis.Store
	tick   *manualTicker
}

func newHarness(t *testing.T, store analysis.Store, scorer *stubScorer) *harness {
	t.Helper()
	if store == nil {
		store = memory.NewStore()
	}
	tick := &manualTicker{ch: make(chan time.Time)}
	factory := func() *appcapture.Controller {
		return appcapture.NewController(
			stubDevice{},
			func(pcm []byte, sr, ch int) []byte { return pcm },
			func(time.Duration) application.Ticker { return tick },
			appcapture.Config{RecommendedSeconds: 30},
		)
	}
	hist := history.NewSynchronizer(store, application.SystemClock{}, "t1")
	m := NewManager(factory, scorer, hist)
	return &harness{m: m, scorer: scorer, store: store, tick: tick}
}

func lowResult() analysis.ScoreResult {
	return analysis.ScoreResult{RiskLevel: analysis.RiskLow, Score: 0.12}
}

// ---- scenarios ----

// Scenario A: a 2 MiB WAV upload goes Capturing -> Submitting -> Result and
// lands one history entry.
func TestUploadHappyPath(t *testing.T) {
	h := newHarness(t, nil, &stubScorer{res: lowResult()})
	ctx := context.Background()

	if err := h.m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.m.AcceptFile("voice.wav", 2*1024*1024, "audio/wav", []byte("wav-bytes")); err != nil {
		t.Fatal(err)
	}
	if err := h.m.Submit(ctx); err != nil {
		t.Fatal(err)
	}

	v := h.m.View()
	if v.State != domain.StateResult {
		t.Fatalf("state = %q", v.State)
	}
	if v.LastResult == nil || v.LastResult.RiskLevel != analysis.RiskLow || v.LastResult.Score != 0.12 {
		t.Errorf("result = %+v", v.LastResult)
	}
	if len(v.History) != 1 {
		t.Fatalf("history len = %d", len(v.History))
	}
	rec := v.History[0]
	if rec.InputType != domcapture.SourceUpload || rec.FileName != "voice.wav" {
		t.Errorf("record = %+v", rec)
	}
	if rec.RiskLevel != analysis.RiskLow || rec.Score != 0.12 {
		t.Errorf("record outcome = %+v", rec)
	}
}

// Scenario B: oversized upload is rejected locally; no submission, no entry.
func TestOversizedUploadStaysLocal(t *testing.T) {
	h := newHarness(t, nil, &stubScorer{res: lowResult()})
	ctx := context.Background()
	if err := h.m.Start(ctx); err != nil {
		t.Fatal(err)
	}

	err := h.m.AcceptFile("big.mp3", 11*1024*1024, "audio/mpeg", nil)
	if !errors.Is(err, domcapture.ErrFileTooLarge) {
		t.Fatalf("got %v, want ErrFileTooLarge", err)
	}
	v := h.m.View()
	if v.State != domain.StateCapturing {
		t.Fatalf("state = %q, validation must not leave Capturing", v.State)
	}
	if v.CaptureNote == "" {
		t.Error("capture note missing")
	}
	if len(v.History) != 0 {
		t.Errorf("history len = %d, want 0", len(v.History))
	}
	if h.scorer.calls != 0 {
		t.Errorf("scorer called %d times", h.scorer.calls)
	}
}

// Scenario C: an 8 second recording carries an advisory but submits fine.
func TestShortRecordingAdvisory(t *testing.T) {
	h := newHarness(t, nil, &stubScorer{res: lowResult()})
	ctx := context.Background()
	if err := h.m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.m.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		h.tick.ch <- time.Now()
	}
	// the 8th tick is delivered; absorb before stopping
	waitFor(t, func() bool { return h.m.View().Elapsed == 8 })
	if err := h.m.StopRecording(); err != nil {
		t.Fatal(err)
	}

	v := h.m.View()
	if v.ActivePayload == nil || v.ActivePayload.DurationSeconds != 8 {
		t.Fatalf("payload = %+v", v.ActivePayload)
	}
	if v.Advisory == "" {
		t.Error("expected a soft advisory below the recommended duration")
	}
	if err := h.m.Submit(ctx); err != nil {
		t.Fatalf("submission must stay permitted: %v", err)
	}
	if h.m.State() != domain.StateResult {
		t.Errorf("state = %q", h.m.State())
	}
	if len(h.m.View().History) != 1 {
		t.Error("recording submission must create a history entry")
	}
	if h.m.View().History[0].InputType != domcapture.SourceRecording {
		t.Errorf("input type = %q", h.m.View().History[0].InputType)
	}
}

// Scenario D: HTTP 500 from the scoring service resolves to Error with the
// body as detail; retry clears it.
func TestSubmitFailureAndRetry(t *testing.T) {
	h := newHarness(t, nil, &stubScorer{err: errors.New("scoring service error: 500 - internal failure")})
	ctx := context.Background()
	if err := h.m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.m.AcceptFile("voice.wav", 100, "audio/wav", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := h.m.Submit(ctx); err == nil {
		t.Fatal("expected submission error")
	}

	v := h.m.View()
	if v.State != domain.StateError {
		t.Fatalf("state = %q", v.State)
	}
	if !strings.Contains(v.LastError, "500 - internal failure") {
		t.Errorf("last error = %q, want raw detail", v.LastError)
	}
	if len(v.History) != 0 {
		t.Error("failed submission must not create history")
	}

	if err := h.m.Retry(); err != nil {
		t.Fatal(err)
	}
	v = h.m.View()
	if v.State != domain.StateCapturing || v.LastError != "" {
		t.Errorf("after retry: state=%q lastError=%q", v.State, v.LastError)
	}
}

// Scenario E is covered in the history package; here: store failure after a
// successful scoring call still shows the result, with a distinct warning.
func TestPersistFailureStillShowsResult(t *testing.T) {
	h := newHarness(t, failingStore{inner: memory.NewStore()}, &stubScorer{res: lowResult()})
	ctx := context.Background()
	if err := h.m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.m.AcceptFile("voice.wav", 100, "audio/wav", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := h.m.Submit(ctx); err != nil {
		t.Fatalf("submit must not fail on persistence trouble: %v", err)
	}
	v := h.m.View()
	if v.State != domain.StateResult {
		t.Fatalf("state = %q", v.State)
	}
	if v.PersistWarning == "" {
		t.Error("persistence failure must be reported distinctly")
	}
	if v.LastError != "" {
		t.Error("persistence failure must not set the session error")
	}
}

// Malformed responses (unknown classification) escalate like failures.
func TestMalformedResponseEscalates(t *testing.T) {
	h := newHarness(t, nil, &stubScorer{res: analysis.ScoreResult{RiskLevel: "severe", Score: 1}})
	ctx := context.Background()
	if err := h.m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.m.AcceptFile("voice.wav", 100, "audio/wav", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := h.m.Submit(ctx); err == nil {
		t.Fatal("expected validation of the response to fail")
	}
	if h.m.State() != domain.StateError {
		t.Errorf("state = %q", h.m.State())
	}
}

// Only one submission can ever be in flight per session.
func TestSingleInFlightSubmission(t *testing.T) {
	block := make(chan struct{})
	scorer := &stubScorer{res: lowResult(), block: block}
	h := newHarness(t, nil, scorer)
	ctx := context.Background()
	if err := h.m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.m.AcceptFile("voice.wav", 100, "audio/wav", []byte("x")); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- h.m.Submit(ctx) }()
	waitFor(t, func() bool { return h.m.State() == domain.StateSubmitting })

	if err := h.m.Submit(ctx); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("second submit: got %v, want ErrInvalidTransition", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if h.m.State() != domain.StateResult {
		t.Errorf("state = %q", h.m.State())
	}
	if scorer.calls != 1 {
		t.Errorf("scorer calls = %d, want 1", scorer.calls)
	}
}

// Device failure surfaces locally and never escalates the session.
func TestDeviceFailureStaysLocal(t *testing.T) {
	tickFactory := func(time.Duration) application.Ticker {
		return &manualTicker{ch: make(chan time.Time)}
	}
	factory := func() *appcapture.Controller {
		return appcapture.NewController(
			stubDevice{err: errors.New("permission denied")},
			nil, tickFactory, appcapture.Config{},
		)
	}
	hist := history.NewSynchronizer(memory.NewStore(), application.SystemClock{}, "t1")
	m := NewManager(factory, &stubScorer{res: lowResult()}, hist)
	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}

	err := m.StartRecording(ctx)
	if !errors.Is(err, domcapture.ErrDeviceUnavailable) {
		t.Fatalf("got %v, want ErrDeviceUnavailable", err)
	}
	v := m.View()
	if v.State != domain.StateCapturing {
		t.Fatalf("state = %q", v.State)
	}
	if v.CaptureNote == "" {
		t.Error("capture note missing")
	}
}

// A new analysis after a result clears everything and reuses the history.
func TestNewAnalysisAfterResult(t *testing.T) {
	h := newHarness(t, nil, &stubScorer{res: lowResult()})
	ctx := context.Background()
	if err := h.m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.m.AcceptFile("voice.wav", 100, "audio/wav", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := h.m.Submit(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.m.NewAnalysis(); err != nil {
		t.Fatal(err)
	}
	v := h.m.View()
	if v.State != domain.StateCapturing || v.LastResult != nil {
		t.Errorf("after new analysis: state=%q result=%+v", v.State, v.LastResult)
	}
	if len(v.History) != 1 {
		t.Errorf("history must survive a new analysis, len = %d", len(v.History))
	}
	if v.ActivePayload != nil {
		t.Error("fresh capture phase must not inherit a payload")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

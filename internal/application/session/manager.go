package session

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"

	"github.com/vocalsense/vocalsense/internal/application"
	appcapture "github.com/vocalsense/vocalsense/internal/application/capture"
	"github.com/vocalsense/vocalsense/internal/application/history"
	"github.com/vocalsense/vocalsense/internal/domain/analysis"
	domcapture "github.com/vocalsense/vocalsense/internal/domain/capture"
	domain "github.com/vocalsense/vocalsense/internal/domain/session"
)

// ControllerFactory builds a fresh capture controller. A new controller is
// created per capture phase so prior captures can never leak into a new one.
type ControllerFactory func() *appcapture.Controller

// Manager drives one user's session through capture, submission and
// result/error, and keeps the visible history in sync. All mutation goes
// through the domain transition function; the manager only decides which
// events to feed it.
// Manager is designed to be used concurrently and is thread-safe.
type Manager struct {
	NewController ControllerFactory
	Scorer        analysis.Scorer
	History       *history.Synchronizer
	Archive       analysis.Archive
	Recommender   analysis.Recommender
	Clock         application.Clock

	mu   sync.Mutex
	sess domain.Session
	ctl  *appcapture.Controller
}

func NewManager(f ControllerFactory, scorer analysis.Scorer, hist *history.Synchronizer) *Manager {
	return &Manager{
		NewController: f,
		Scorer:        scorer,
		History:       hist,
		Clock:         application.SystemClock{},
		sess:          domain.New(),
	}
}

// Start begins a new analysis: Idle -> Capturing with a fresh controller,
// and loads the visible history. A history fetch failure is advisory here,
// a later refresh can still reconcile.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	next, err := domain.Apply(m.sess, domain.EventStart{})
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.sess = next
	m.ctl = m.NewController()
	m.mu.Unlock()

	if err := m.History.Refresh(ctx); err != nil {
		log.Printf("session start: %v", err)
	}
	return nil
}

// AcceptFile runs upload validation. Failures keep the session in Capturing
// with a displayable note; they never escalate to Error.
func (m *Manager) AcceptFile(name string, size int64, contentType string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.State != domain.StateCapturing {
		return domain.ErrInvalidTransition
	}
	p, err := m.ctl.AcceptFile(name, size, contentType, data)
	if err != nil {
		m.sess, _ = domain.Apply(m.sess, domain.EventCaptureFailed{Reason: err.Error()})
		return err
	}
	m.sess, _ = domain.Apply(m.sess, domain.EventCaptured{Payload: p})
	return nil
}

// StartRecording acquires the microphone. Device failures stay local.
func (m *Manager) StartRecording(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.State != domain.StateCapturing {
		return domain.ErrInvalidTransition
	}
	if err := m.ctl.StartRecording(ctx); err != nil {
		m.sess, _ = domain.Apply(m.sess, domain.EventCaptureFailed{Reason: err.Error()})
		return err
	}
	return nil
}

// StopRecording finalizes the capture into the session's active payload.
func (m *Manager) StopRecording() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.State != domain.StateCapturing {
		return domain.ErrInvalidTransition
	}
	p, err := m.ctl.StopRecording()
	if err != nil {
		return err
	}
	m.sess, _ = domain.Apply(m.sess, domain.EventCaptured{Payload: p})
	return nil
}

// Reset discards any capture in progress and stays in Capturing.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := domain.Apply(m.sess, domain.EventReset{})
	if err != nil {
		return err
	}
	m.ctl.Reset()
	m.sess = next
	return nil
}

// Submit sends the active payload to the scoring service and resolves the
// session to Result or Error. Entering Submitting is itself the mutual
// exclusion: a concurrent Submit sees Submitting and is rejected, so at most
// one call is ever in flight per session. There is no cancellation; once
// started the call runs to completion.
func (m *Manager) Submit(ctx context.Context) error {
	m.mu.Lock()
	next, err := domain.Apply(m.sess, domain.EventSubmit{})
	if err != nil {
		m.mu.Unlock()
		return err
	}
	payload := *m.sess.ActivePayload
	m.sess = next
	m.mu.Unlock()

	res, err := m.Scorer.Score(ctx, payload)
	if err == nil {
		err = res.Validate()
	}
	if err != nil {
		m.mu.Lock()
		m.sess, _ = domain.Apply(m.sess, domain.EventSubmitFailed{Reason: err.Error()})
		m.mu.Unlock()
		return err
	}

	m.enrich(ctx, &res)
	warning := m.persist(ctx, payload, res)

	m.mu.Lock()
	m.sess, _ = domain.Apply(m.sess, domain.EventScored{Result: res, PersistWarning: warning})
	m.mu.Unlock()
	return nil
}

// enrich fills in recommendations when the service sent none. Optional and
// best-effort: failures only log.
func (m *Manager) enrich(ctx context.Context, res *analysis.ScoreResult) {
	if m.Recommender == nil || len(res.Recommendations) > 0 {
		return
	}
	recs, err := m.Recommender.Recommend(ctx, res.RiskLevel, res.Score)
	if err != nil {
		log.Printf("recommendation enrichment failed: %v", err)
		return
	}
	res.Recommendations = recs
}

// persist creates the history record and archives the payload bytes. The
// result is shown to the user even if this fails; the combined failure text
// comes back as a distinct warning.
func (m *Manager) persist(ctx context.Context, p domcapture.AudioPayload, res analysis.ScoreResult) string {
	draft := analysis.Draft{
		InputType: p.Source,
		RiskLevel: res.RiskLevel,
		Score:     res.Score,
	}
	if p.Source == domcapture.SourceUpload {
		draft.FileName = p.DisplayName
	}

	var warnings []string
	rec, err := m.History.Record(ctx, draft)
	if err != nil {
		log.Printf("persist analysis failed: %v", err)
		warnings = append(warnings, fmt.Sprintf("result could not be saved to history: %v", err))
	}

	if m.Archive != nil && len(p.Data) > 0 {
		key := m.History.Tenant + "/" + string(rec.ID) + path.Ext(p.DisplayName)
		if _, err := m.Archive.Put(ctx, key, p.MIMEType, p.Data); err != nil {
			log.Printf("archive audio failed: key=%s err=%v", key, err)
			warnings = append(warnings, "audio could not be archived")
		}
	}
	return strings.Join(warnings, "; ")
}

// Retry clears the error and returns to Capturing with a fresh controller.
func (m *Manager) Retry() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := domain.Apply(m.sess, domain.EventRetry{})
	if err != nil {
		return err
	}
	m.sess = next
	m.ctl = m.NewController()
	return nil
}

// NewAnalysis discards the prior result: Result -> Capturing, fresh controller.
func (m *Manager) NewAnalysis() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := domain.Apply(m.sess, domain.EventNewAnalysis{})
	if err != nil {
		return err
	}
	m.sess = next
	if m.ctl != nil {
		m.ctl.Reset()
	}
	m.ctl = m.NewController()
	return nil
}

// Close releases any held device. Called on session teardown, including
// abnormal paths: the microphone must never stay held.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctl != nil {
		m.ctl.Reset()
	}
}

// View is a read snapshot of the session for the HTTP surface.
type View struct {
	domain.Session
	Advisory  string `json:"advisory,omitempty"`
	Recording bool   `json:"recording"`
	Elapsed   int    `json:"elapsed_seconds"`
}

func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := View{Session: m.sess}
	v.Session.History = m.History.List()
	if m.ctl != nil {
		v.Advisory = m.ctl.Advisory()
		v.Recording = m.ctl.Recording()
		v.Elapsed = m.ctl.Elapsed()
	}
	return v
}

// State returns the current workflow state.
func (m *Manager) State() domain.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.State
}

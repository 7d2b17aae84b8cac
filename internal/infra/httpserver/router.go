package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/vocalsense/vocalsense/internal/application"
	apphistory "github.com/vocalsense/vocalsense/internal/application/history"
	appsession "github.com/vocalsense/vocalsense/internal/application/session"
	"github.com/vocalsense/vocalsense/internal/domain/analysis"
	domcapture "github.com/vocalsense/vocalsense/internal/domain/capture"
	domsession "github.com/vocalsense/vocalsense/internal/domain/session"
	"github.com/vocalsense/vocalsense/internal/middleware"
)

// Options wires the collaborators the router needs.
type Options struct {
	Store       analysis.Store
	NewManager  func(tenant string, sync *apphistory.Synchronizer) *appsession.Manager
	Clock       application.Clock
	CORSOrigins []string
	MaxBodySize int64
}

type Router struct {
	opts     Options
	registry *appsession.Registry

	mu    sync.Mutex
	syncs map[string]*apphistory.Synchronizer
}

// NewRouter builds the HTTP surface. One history synchronizer exists per
// tenant and is shared by every session of that tenant, so all history
// mutation funnels through it.
func NewRouter(opts Options) http.Handler {
	if opts.Clock == nil {
		opts.Clock = application.SystemClock{}
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 12 * 1024 * 1024 // payload ceiling plus multipart overhead
	}
	r := &Router{opts: opts, syncs: make(map[string]*apphistory.Synchronizer)}
	r.registry = appsession.NewRegistry(func(tenant string) *appsession.Manager {
		return opts.NewManager(tenant, r.tenantSync(tenant))
	})

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(opts.CORSOrigins),
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.RateLimitMiddleware(20, 5))

	mux.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Post("/sessions", r.wrap(r.handleOpenSession))
		rt.Get("/sessions/{sid}", r.wrap(r.handleGetSession))
		rt.Delete("/sessions/{sid}", r.wrap(r.handleDropSession))
		rt.Post("/sessions/{sid}/upload", r.wrap(r.handleUpload))
		rt.Post("/sessions/{sid}/record/start", r.wrap(r.handleRecordStart))
		rt.Post("/sessions/{sid}/record/stop", r.wrap(r.handleRecordStop))
		rt.Post("/sessions/{sid}/reset", r.wrap(r.handleReset))
		rt.Post("/sessions/{sid}/submit", r.wrap(r.handleSubmit))
		rt.Post("/sessions/{sid}/retry", r.wrap(r.handleRetry))
		rt.Post("/sessions/{sid}/new", r.wrap(r.handleNewAnalysis))
		rt.Get("/history", r.wrap(r.handleHistory))
		rt.Delete("/history/{id}", r.wrap(r.handleHistoryDelete))
	})

	return mux
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func (r *Router) tenantSync(tenant string) *apphistory.Synchronizer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.syncs[tenant]; ok {
		return s
	}
	s := apphistory.NewSynchronizer(r.opts.Store, r.opts.Clock, tenant)
	r.syncs[tenant] = s
	return s
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, appsession.ErrSessionNotFound), errors.Is(err, sql.ErrNoRows):
				http.Error(w, "not found", http.StatusNotFound)
			case errors.Is(err, domcapture.ErrUnsupportedFormat),
				errors.Is(err, domcapture.ErrFileTooLarge),
				errors.Is(err, domcapture.ErrDeviceUnavailable),
				errors.Is(err, domcapture.ErrNoPayload),
				errors.Is(err, domcapture.ErrNotRecording),
				errors.Is(err, domcapture.ErrAlreadyRecording):
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			case errors.Is(err, domsession.ErrInvalidTransition):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

func (r *Router) manager(req *http.Request) (*appsession.Manager, error) {
	tenant := chi.URLParam(req, "tenant")
	sid := chi.URLParam(req, "sid")
	return r.registry.Get(tenant, sid)
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/{tenant}/sessions
func (r *Router) handleOpenSession(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	if err := middleware.ValidateTenantID(tenant); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	id, m := r.registry.Open(tenant)
	if err := m.Start(req.Context()); err != nil {
		r.registry.Drop(tenant, id)
		return err
	}
	w.WriteHeader(http.StatusCreated)
	return writeJSON(w, map[string]any{"session_id": id, "view": m.View()})
}

// GET /v1/{tenant}/sessions/{sid}
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) error {
	m, err := r.manager(req)
	if err != nil {
		return err
	}
	return writeJSON(w, m.View())
}

// DELETE /v1/{tenant}/sessions/{sid}
// A session with a submission in flight cannot be abandoned.
func (r *Router) handleDropSession(w http.ResponseWriter, req *http.Request) error {
	m, err := r.manager(req)
	if err != nil {
		return err
	}
	if m.State() == domsession.StateSubmitting {
		return fmt.Errorf("%w: submission in flight", domsession.ErrInvalidTransition)
	}
	r.registry.Drop(chi.URLParam(req, "tenant"), chi.URLParam(req, "sid"))
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/{tenant}/sessions/{sid}/upload, multipart field "file"
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	m, err := r.manager(req)
	if err != nil {
		return err
	}
	req.Body = http.MaxBytesReader(w, req.Body, r.opts.MaxBodySize)
	file, header, err := req.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			// reject before buffering; the controller applies the exact ceiling
			return domcapture.ErrFileTooLarge
		}
		http.Error(w, "multipart field 'file' is required", http.StatusBadRequest)
		return nil
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	contentType := header.Header.Get("Content-Type")
	name := middleware.SanitizeFileName(header.Filename)
	if err := m.AcceptFile(name, header.Size, contentType, data); err != nil {
		return err
	}
	return writeJSON(w, m.View())
}

// POST /v1/{tenant}/sessions/{sid}/record/start
func (r *Router) handleRecordStart(w http.ResponseWriter, req *http.Request) error {
	m, err := r.manager(req)
	if err != nil {
		return err
	}
	// recording outlives the request; device release is tied to the
	// session, not this context
	if err := m.StartRecording(req.Context()); err != nil {
		return err
	}
	return writeJSON(w, m.View())
}

// POST /v1/{tenant}/sessions/{sid}/record/stop
func (r *Router) handleRecordStop(w http.ResponseWriter, req *http.Request) error {
	m, err := r.manager(req)
	if err != nil {
		return err
	}
	if err := m.StopRecording(); err != nil {
		return err
	}
	return writeJSON(w, m.View())
}

// POST /v1/{tenant}/sessions/{sid}/reset
func (r *Router) handleReset(w http.ResponseWriter, req *http.Request) error {
	m, err := r.manager(req)
	if err != nil {
		return err
	}
	if err := m.Reset(); err != nil {
		return err
	}
	return writeJSON(w, m.View())
}

// POST /v1/{tenant}/sessions/{sid}/submit
// Runs the submission to completion. A scoring failure resolves the session
// to Error and is reported through the view, not as a transport error.
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	m, err := r.manager(req)
	if err != nil {
		return err
	}
	middleware.IncrementAnalyses()
	if err := m.Submit(req.Context()); err != nil {
		if errors.Is(err, domsession.ErrInvalidTransition) || errors.Is(err, domcapture.ErrNoPayload) {
			return err
		}
		middleware.IncrementAnalysesFailed()
		log.Printf("submission failed: tenant=%s sid=%s err=%v",
			chi.URLParam(req, "tenant"), chi.URLParam(req, "sid"), err)
	}
	return writeJSON(w, m.View())
}

// POST /v1/{tenant}/sessions/{sid}/retry
func (r *Router) handleRetry(w http.ResponseWriter, req *http.Request) error {
	m, err := r.manager(req)
	if err != nil {
		return err
	}
	if err := m.Retry(); err != nil {
		return err
	}
	return writeJSON(w, m.View())
}

// POST /v1/{tenant}/sessions/{sid}/new
func (r *Router) handleNewAnalysis(w http.ResponseWriter, req *http.Request) error {
	m, err := r.manager(req)
	if err != nil {
		return err
	}
	if err := m.NewAnalysis(); err != nil {
		return err
	}
	return writeJSON(w, m.View())
}

// GET /v1/{tenant}/history?limit=N
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	sync := r.tenantSync(chi.URLParam(req, "tenant"))
	if err := sync.Refresh(req.Context()); err != nil {
		return err
	}
	list := sync.List()
	limit := middleware.ValidateLimit(intQuery(req, "limit"))
	if len(list) > limit {
		list = list[:limit]
	}
	return writeJSON(w, list)
}

func intQuery(req *http.Request, key string) int {
	v, err := strconv.Atoi(req.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}

// DELETE /v1/{tenant}/history/{id} (idempotent)
func (r *Router) handleHistoryDelete(w http.ResponseWriter, req *http.Request) error {
	sync := r.tenantSync(chi.URLParam(req, "tenant"))
	id := analysis.RecordID(chi.URLParam(req, "id"))
	if err := sync.Remove(req.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

package history

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/vocalsense/vocalsense/internal/application"
	"github.com/vocalsense/vocalsense/internal/domain/analysis"
)

// Synchronizer keeps the visible history consistent with the history store.
// It is the only component allowed to mutate the history sequence.
type Synchronizer struct {
	Store  analysis.Store
	Clock  application.Clock
	Tenant string

	mu      sync.Mutex
	records []analysis.Record
}

func NewSynchronizer(store analysis.Store, clock application.Clock, tenant string) *Synchronizer {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Synchronizer{Store: store, Clock: clock, Tenant: tenant}
}

// Refresh replaces the in-memory history with the store's full list,
// newest-first by CreatedAt. Store order is not trusted; ties keep the
// store's relative order (most recently inserted first).
func (s *Synchronizer) Refresh(ctx context.Context) error {
	list, err := s.Store.List(ctx, s.Tenant)
	if err != nil {
		return fmt.Errorf("history refresh: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	s.mu.Lock()
	s.records = list
	s.mu.Unlock()
	return nil
}

// Record persists a new analysis and refreshes. On persistence failure the
// analysis outcome must still be shown, so an optimistic pending entry is
// kept at the head of the list and the error is returned for the caller to
// surface as a warning, never silently dropped.
func (s *Synchronizer) Record(ctx context.Context, d analysis.Draft) (analysis.Record, error) {
	pending := analysis.Record{
		ID:        analysis.RecordID("tmp-" + uuid.New().String()),
		TenantID:  s.Tenant,
		CreatedAt: s.Clock.Now(),
		InputType: d.InputType,
		FileName:  d.FileName,
		RiskLevel: d.RiskLevel,
		Score:     d.Score,
		Pending:   true,
	}
	s.mu.Lock()
	s.records = append([]analysis.Record{pending}, s.records...)
	s.mu.Unlock()

	created, err := s.Store.Create(ctx, s.Tenant, d)
	if err != nil {
		return pending, fmt.Errorf("history create: %w", err)
	}
	// confirmed: drop the optimistic entry, re-read the store
	s.mu.Lock()
	s.records = withoutID(s.records, pending.ID)
	s.mu.Unlock()
	if err := s.Refresh(ctx); err != nil {
		// the record exists; a later refresh can still reconcile the view
		log.Printf("history refresh after create failed: id=%s err=%v", created.ID, err)
	}
	return created, nil
}

// Remove deletes a record and refreshes. Deleting a missing id is a no-op
// success (idempotent).
func (s *Synchronizer) Remove(ctx context.Context, id analysis.RecordID) error {
	if err := s.Store.Delete(ctx, s.Tenant, id); err != nil {
		return fmt.Errorf("history delete: %w", err)
	}
	s.mu.Lock()
	s.records = withoutID(s.records, id)
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// List returns a copy of the current visible history.
func (s *Synchronizer) List() []analysis.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]analysis.Record, len(s.records))
	copy(out, s.records)
	return out
}

func withoutID(in []analysis.Record, id analysis.RecordID) []analysis.Record {
	out := in[:0:0]
	for _, r := range in {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/vocalsense/vocalsense/internal/domain/analysis"
)

// Store is an in-memory history store, used for anonymous sessions and tests.
// It honors the same contract as the SQL stores: store-assigned ids and
// timestamps, idempotent delete.
type Store struct {
	Clock func() time.Time

	mu      sync.Mutex
	records map[string][]domain.Record // keyed by tenant, insertion order
}

func NewStore() *Store {
	return &Store{Clock: time.Now, records: make(map[string][]domain.Record)}
}

func (s *Store) List(ctx context.Context, tenant string) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := s.records[tenant]
	// newest inserted first, like the SQL ORDER BY created_at DESC, id DESC
	out := make([]domain.Record, 0, len(in))
	for i := len(in) - 1; i >= 0; i-- {
		out = append(out, in[i])
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, tenant string, d domain.Draft) (domain.Record, error) {
	rec := domain.Record{
		ID:        domain.RecordID(uuid.New().String()),
		TenantID:  tenant,
		CreatedAt: s.Clock().UTC(),
		InputType: d.InputType,
		FileName:  d.FileName,
		RiskLevel: d.RiskLevel,
		Score:     d.Score,
	}
	s.mu.Lock()
	s.records[tenant] = append(s.records[tenant], rec)
	s.mu.Unlock()
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, tenant string, id domain.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := s.records[tenant]
	out := in[:0]
	for _, r := range in {
		if r.ID != id {
			out = append(out, r)
		}
	}
	s.records[tenant] = out
	return nil
}

package analysis

import (
	"context"

	"github.com/vocalsense/vocalsense/internal/domain/capture"
)

// Store port (interface for the history store). List returns records for the
// tenant; ordering is normalized by the synchronizer, not trusted from here.
// Delete on a missing id is a no-op success.
type Store interface {
	List(ctx context.Context, tenant string) ([]Record, error)
	Create(ctx context.Context, tenant string, d Draft) (Record, error)
	Delete(ctx context.Context, tenant string, id RecordID) error
}

// Scorer port (interface for the remote scoring service).
type Scorer interface {
	Score(ctx context.Context, p capture.AudioPayload) (ScoreResult, error)
}

// Archive port (interface for keeping submitted payload bytes). Failures are
// reported as warnings, never as session errors.
type Archive interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Recommender port. Fills in recommendations when the scoring service sent
// none. Optional: a nil Recommender skips enrichment.
type Recommender interface {
	Recommend(ctx context.Context, level RiskLevel, score float64) ([]string, error)
}

package analysis

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/vocalsense/vocalsense/internal/domain/capture"
)

// RecordID identifier type, assigned by the store at creation time.
type RecordID string

// RiskLevel enum
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var ErrUnknownRiskLevel = errors.New("unknown risk level")

// ParseRiskLevel maps wire values to the three-level classification. The
// scoring service answers in Portuguese (baixo/médio/alto); english values
// are accepted too since some service builds already return them.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "baixo", "low":
		return RiskLow, nil
	case "médio", "medio", "medium":
		return RiskMedium, nil
	case "alto", "high":
		return RiskHigh, nil
	default:
		return "", ErrUnknownRiskLevel
	}
}

// ScoreResult is a validated scoring service response.
type ScoreResult struct {
	RiskLevel       RiskLevel       `json:"risk_level"`
	Score           float64         `json:"score"`
	Recommendations []string        `json:"recommendations,omitempty"`
	Raw             json.RawMessage `json:"-"`
}

// Validate checks the response is well formed: recognized classification and
// a finite score. The score itself is opaque and never recomputed here.
func (r ScoreResult) Validate() error {
	if r.RiskLevel != RiskLow && r.RiskLevel != RiskMedium && r.RiskLevel != RiskHigh {
		return ErrUnknownRiskLevel
	}
	if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
		return errors.New("score is not a finite number")
	}
	return nil
}

// Record is one persisted analysis outcome. Never mutated after creation;
// deleted only by explicit user action.
type Record struct {
	ID        RecordID       `json:"id"`
	TenantID  string         `json:"tenant_id"`
	CreatedAt time.Time      `json:"created_at"`
	InputType capture.Source `json:"input_type"`
	FileName  string         `json:"file_name,omitempty"` // only for uploads
	RiskLevel RiskLevel      `json:"risk_level"`
	Score     float64        `json:"score"`
	Pending   bool           `json:"pending,omitempty"` // optimistic local entry, not yet confirmed
}

// Draft holds the store-independent fields of a record about to be created.
// The store assigns ID and CreatedAt.
type Draft struct {
	InputType capture.Source
	FileName  string
	RiskLevel RiskLevel
	Score     float64
}

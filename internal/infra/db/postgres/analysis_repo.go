package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	domain "github.com/vocalsense/vocalsense/internal/domain/analysis"
	"github.com/vocalsense/vocalsense/internal/domain/capture"
)

type AnalysisRepository struct{ db *sql.DB }

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository { return &AnalysisRepository{db: db} }

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		return nil, err
	}
	return db, nil
}

// List returns all analyses for the tenant, newest first.
func (r *AnalysisRepository) List(ctx context.Context, tenant string) ([]domain.Record, error) {
	const q = `
SELECT id, tenant_id, created_at, input_type, file_name, risk_level, score
FROM voice_analyses
WHERE tenant_id=$1
ORDER BY created_at DESC, id DESC;`
	rows, err := r.db.QueryContext(ctx, q, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var rec domain.Record
		var fileName sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.CreatedAt,
			&rec.InputType, &fileName, &rec.RiskLevel, &rec.Score,
		); err != nil {
			return nil, err
		}
		rec.FileName = fileName.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Create inserts a new analysis record; the store assigns id and created_at.
func (r *AnalysisRepository) Create(ctx context.Context, tenant string, d domain.Draft) (domain.Record, error) {
	const q = `
INSERT INTO voice_analyses
  (id, tenant_id, created_at, input_type, file_name, risk_level, score)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	if strings.TrimSpace(tenant) == "" {
		tenant = "-"
	}
	rec := domain.Record{
		ID:        domain.RecordID(uuid.New().String()),
		TenantID:  tenant,
		CreatedAt: time.Now().UTC(),
		InputType: d.InputType,
		FileName:  d.FileName,
		RiskLevel: d.RiskLevel,
		Score:     d.Score,
	}
	var fileName sql.NullString
	if d.InputType == capture.SourceUpload && d.FileName != "" {
		fileName = sql.NullString{String: d.FileName, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.TenantID, rec.CreatedAt,
		rec.InputType, fileName, rec.RiskLevel, rec.Score,
	)
	if err != nil {
		return domain.Record{}, fmt.Errorf("inserting analysis: %w", err)
	}
	return rec, nil
}

// Delete removes a record by id; a missing id is a no-op success.
func (r *AnalysisRepository) Delete(ctx context.Context, tenant string, id domain.RecordID) error {
	const q = `DELETE FROM voice_analyses WHERE tenant_id=$1 AND id=$2;`
	_, err := r.db.ExecContext(ctx, q, tenant, id)
	return err
}

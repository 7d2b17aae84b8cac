package memory

import (
	"context"
	"testing"
	"time"

	domain "github.com/vocalsense/vocalsense/internal/domain/analysis"
	"github.com/vocalsense/vocalsense/internal/domain/capture"
)

func TestCreateAssignsIdentityAndTimestamp(t *testing.T) {
	s := NewStore()
	fixed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s.Clock = func() time.Time { return fixed }

	rec, err := s.Create(context.Background(), "t1", domain.Draft{
		InputType: capture.SourceUpload,
		FileName:  "voice.wav",
		RiskLevel: domain.RiskLow,
		Score:     0.12,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" {
		t.Error("id not assigned")
	}
	if !rec.CreatedAt.Equal(fixed) {
		t.Errorf("created at = %v", rec.CreatedAt)
	}
	if rec.TenantID != "t1" || rec.FileName != "voice.wav" {
		t.Errorf("record = %+v", rec)
	}
}

func TestListNewestFirstPerTenant(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	var ids []domain.RecordID
	for i := 0; i < 3; i++ {
		rec, err := s.Create(ctx, "t1", domain.Draft{InputType: capture.SourceRecording, RiskLevel: domain.RiskLow})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, rec.ID)
	}
	if _, err := s.Create(ctx, "t2", domain.Draft{RiskLevel: domain.RiskHigh}); err != nil {
		t.Fatal(err)
	}

	got, err := s.List(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	for i := range got {
		if got[i].ID != ids[len(ids)-1-i] {
			t.Errorf("pos %d: got %s", i, got[i].ID)
		}
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	rec, _ := s.Create(ctx, "t1", domain.Draft{RiskLevel: domain.RiskMedium})

	if err := s.Delete(ctx, "t1", rec.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "t1", rec.ID); err != nil {
		t.Errorf("second delete: %v", err)
	}
	if err := s.Delete(ctx, "t1", "never-existed"); err != nil {
		t.Errorf("unknown id: %v", err)
	}
	got, _ := s.List(ctx, "t1")
	if len(got) != 0 {
		t.Errorf("len after delete = %d", len(got))
	}
}

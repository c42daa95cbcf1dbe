package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

func testRecord(id string, createdAt time.Time) *storage.ReportRecord {
	return &storage.ReportRecord{
		ReportID:     id,
		Source:       "buy 1 spy",
		ConfigDigest: "digest",
		BaseSeed:     42,
		InitialCash:  100000,
		Iterations:   100,
		TradingDays:  252,
		CreatedAt:    createdAt,
		Report:       &domain.SimulationReport{Iterations: 100, TradingDays: 252},
	}
}

func TestReportStore_InsertAndGet(t *testing.T) {
	store := NewReportStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRecord("r1", time.Now())); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.ReportID != "r1" || got.Report.Iterations != 100 {
		t.Errorf("got %+v, want r1 with 100 iterations", got)
	}
}

func TestReportStore_DuplicateKey(t *testing.T) {
	store := NewReportStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRecord("r1", time.Now())); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.Insert(ctx, testRecord("r1", time.Now())); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("got %v, want ErrDuplicateKey", err)
	}
}

func TestReportStore_NotFound(t *testing.T) {
	store := NewReportStore()
	if _, err := store.GetByID(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestReportStore_ListNewestFirst(t *testing.T) {
	store := NewReportStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := store.Insert(ctx, testRecord(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("insert %s failed: %v", id, err)
		}
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 || all[0].ReportID != "c" || all[2].ReportID != "a" {
		t.Errorf("List order wrong: %v", ids(all))
	}

	two, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List with limit failed: %v", err)
	}
	if len(two) != 2 || two[0].ReportID != "c" {
		t.Errorf("limited list wrong: %v", ids(two))
	}
}

func ids(recs []*storage.ReportRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ReportID
	}
	return out
}

package idhash

import (
	"testing"

	"strategy-lab/internal/domain"
)

func TestComputeReportID(t *testing.T) {
	tests := []struct {
		name         string
		source       string
		configDigest string
		baseSeed     int64
		initialCash  float64
	}{
		{"simple buy", "buy 1 spy", "abc123", 42, 100000},
		{"different seed", "buy 1 spy", "abc123", 43, 100000},
		{"empty source", "", "abc123", 42, 100000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeReportID(tt.source, tt.configDigest, tt.baseSeed, tt.initialCash)
			if len(got) != 64 {
				t.Errorf("ComputeReportID() length = %d, want 64", len(got))
			}
			got2 := ComputeReportID(tt.source, tt.configDigest, tt.baseSeed, tt.initialCash)
			if got != got2 {
				t.Errorf("ComputeReportID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeReportID_SeedChangesID(t *testing.T) {
	a := ComputeReportID("buy 1 spy", "digest", 42, 100000)
	b := ComputeReportID("buy 1 spy", "digest", 43, 100000)
	if a == b {
		t.Error("different seeds must produce different report IDs")
	}
}

func TestComputeRunID(t *testing.T) {
	report := ComputeReportID("buy 1 spy", "digest", 42, 100000)
	a := ComputeRunID(report, 0)
	b := ComputeRunID(report, 1)
	if len(a) != 64 || len(b) != 64 {
		t.Errorf("run ID lengths %d/%d, want 64", len(a), len(b))
	}
	if a == b {
		t.Error("different iterations must produce different run IDs")
	}
	if a != ComputeRunID(report, 0) {
		t.Error("ComputeRunID() not deterministic")
	}
}

func TestConfigDigest_Deterministic(t *testing.T) {
	cfg := &domain.SimulationConfiguration{
		Assets: []domain.Asset{{
			Ticker: "spy", InitialPrice: 100,
			Model: domain.AssetModel{Kind: domain.ModelGBM, GBM: &domain.GBMParams{Mu: 0.05, Sigma: 0.2}},
		}},
		TradingDays: 252,
		Iterations:  1000,
	}
	if ConfigDigest(cfg) != ConfigDigest(cfg) {
		t.Error("ConfigDigest() not deterministic")
	}

	other := &domain.SimulationConfiguration{
		Assets:      cfg.Assets,
		TradingDays: 253,
		Iterations:  1000,
	}
	if ConfigDigest(cfg) == ConfigDigest(other) {
		t.Error("different configurations must produce different digests")
	}
}

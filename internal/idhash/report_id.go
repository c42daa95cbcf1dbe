// Package idhash derives deterministic identifiers for simulation reports
// and individual runs. The same request always hashes to the same ID, which
// makes persisted results naturally idempotent.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"strategy-lab/internal/domain"
)

// ConfigDigest computes a stable digest of a simulation configuration from
// its canonical JSON encoding.
func ConfigDigest(cfg *domain.SimulationConfiguration) string {
	// Map iteration order is the only JSON nondeterminism here, and
	// encoding/json sorts map keys.
	data, err := json.Marshal(cfg)
	if err != nil {
		// A configuration is plain data; this cannot fail for valid input.
		data = []byte(fmt.Sprintf("%+v", cfg))
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ComputeReportID computes a deterministic report ID.
// Formula: SHA256(source|configDigest|baseSeed|initialCash)
// Returns a hex-encoded hash (64 characters).
func ComputeReportID(source, configDigest string, baseSeed int64, initialCash float64) string {
	data := fmt.Sprintf("%s|%s|%d|%g", source, configDigest, baseSeed, initialCash)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeRunID computes a deterministic per-iteration ID under a report.
// Formula: SHA256(reportID|iteration)
func ComputeRunID(reportID string, iteration int) string {
	data := fmt.Sprintf("%s|%d", reportID, iteration)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

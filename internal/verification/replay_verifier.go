package verification

import (
	"context"
	"errors"
	"fmt"

	"strategy-lab/internal/simulator"
)

// ErrNoRawRuns is returned when the stored result was produced without
// KeepRawResults and per-run comparison is impossible.
var ErrNoRawRuns = errors.New("stored result does not retain raw runs")

// ReplayVerifier re-executes a Monte Carlo batch with its original options
// and checks that every run and the aggregate report reproduce.
type ReplayVerifier struct {
	opts simulator.Options
}

// NewReplayVerifier creates a verifier for the given batch options. Raw
// results are always kept on replay; any observer is dropped.
func NewReplayVerifier(opts simulator.Options) *ReplayVerifier {
	opts.KeepRawResults = true
	opts.Observer = nil
	return &ReplayVerifier{opts: opts}
}

// Verify replays the batch and compares it against a stored result.
func (v *ReplayVerifier) Verify(ctx context.Context, stored *simulator.Result) (*VerificationReport, error) {
	if stored == nil || stored.Report == nil {
		return nil, errors.New("verification: nil stored result")
	}
	if stored.Runs == nil {
		return nil, ErrNoRawRuns
	}

	replayed, err := simulator.New(v.opts).Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("verification: replay: %w", err)
	}
	return compare(stored, replayed), nil
}

// VerifyDeterminism runs the batch from scratch, replays it, and compares the
// two results. It is the self-check used when no stored result exists yet.
func (v *ReplayVerifier) VerifyDeterminism(ctx context.Context) (*VerificationReport, error) {
	first, err := simulator.New(v.opts).Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("verification: first run: %w", err)
	}
	return v.Verify(ctx, first)
}

func compare(stored, replayed *simulator.Result) *VerificationReport {
	report := &VerificationReport{
		TotalRuns: len(stored.Runs),
		Runs:      make([]RunVerification, 0, len(stored.Runs)),
	}

	for i, run := range stored.Runs {
		var divergences []FieldDivergence
		if i < len(replayed.Runs) {
			divergences = CompareRuns(run, replayed.Runs[i])
		} else {
			divergences = []FieldDivergence{{Field: "Run", Expected: run.RunID, Actual: nil}}
		}

		result := RunVerification{
			RunID:       run.RunID,
			Match:       len(divergences) == 0,
			Divergences: divergences,
		}
		report.Runs = append(report.Runs, result)
		if result.Match {
			report.MatchedRuns++
		} else {
			report.DivergentRuns++
		}
	}

	report.ReportDivergences = CompareReports(stored.Report, replayed.Report)
	report.Match = report.DivergentRuns == 0 && len(report.ReportDivergences) == 0
	return report
}

// Package main runs one Monte Carlo batch from the command line. It reads a
// JSON simulation request, streams progress to stderr, writes the report as
// JSON, markdown, and CSV files, and can archive the report and verify batch
// determinism.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"strategy-lab/internal/api"
	"strategy-lab/internal/config"
	"strategy-lab/internal/idhash"
	"strategy-lab/internal/reporting"
	"strategy-lab/internal/simulator"
	"strategy-lab/internal/storage"
	"strategy-lab/internal/storage/migrations"
	pgstore "strategy-lab/internal/storage/postgres"
	"strategy-lab/internal/verification"
)

func main() {
	requestPath := flag.String("request", "", "Path to JSON simulation request (required)")
	sourcePath := flag.String("source", "", "Path to strategy DSL file (overrides dslSource in the request)")
	outputDir := flag.String("output", "output", "Output directory for report files")
	configPath := flag.String("config", "", "Path to YAML host config (for archiving)")
	archive := flag.Bool("archive", false, "Archive the report in the configured report store")
	verify := flag.Bool("verify", false, "Replay the batch and verify determinism")
	keepRaw := flag.Bool("keep-raw", false, "Include per-run equity curves and transactions in report.json")
	seed := flag.Int64("seed", 0, "Base seed override (0 keeps the request value)")
	workers := flag.Int("workers", 0, "Worker count override (0 keeps the request value)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}
	logger := cfg.Logging.NewLogger()
	slog.SetDefault(logger)

	if *requestPath == "" {
		fatal("-request is required")
	}
	req, err := loadRequest(*requestPath, *sourcePath)
	if err != nil {
		fatal("%v", err)
	}
	if *seed != 0 {
		req.BaseSeed = *seed
	}
	if *workers != 0 {
		req.Workers = *workers
	}
	req.KeepRawResults = req.KeepRawResults || *keepRaw
	req.Observer = progressPrinter()

	ctx := context.Background()
	start := time.Now()
	resp := api.RunSimulation(ctx, req)
	fmt.Fprintln(os.Stderr)
	if !resp.Success {
		fatal("simulation failed: %s", resp.Error)
	}
	logger.Info("simulation complete",
		"report_id", resp.ReportID,
		"iterations", resp.Report.Iterations,
		"duration", time.Since(start).String())

	if err := writeReportFiles(*outputDir, req, resp); err != nil {
		fatal("write report files: %v", err)
	}
	logger.Info("report written", "dir", *outputDir)

	if *archive {
		if err := archiveReport(ctx, cfg.Storage, req, resp); err != nil {
			fatal("archive report: %v", err)
		}
	}

	if *verify {
		if err := verifyDeterminism(ctx, req); err != nil {
			fatal("verification: %v", err)
		}
		logger.Info("determinism verified", "iterations", resp.Report.Iterations)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// loadRequest reads the JSON request and the optional DSL source file.
func loadRequest(requestPath, sourcePath string) (api.SimulationRequest, error) {
	var req api.SimulationRequest
	data, err := os.ReadFile(requestPath)
	if err != nil {
		return req, fmt.Errorf("read request: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse request: %w", err)
	}
	if sourcePath != "" {
		source, err := os.ReadFile(sourcePath)
		if err != nil {
			return req, fmt.Errorf("read source: %w", err)
		}
		req.DSLSource = string(source)
	}
	return req, nil
}

// progressPrinter returns an observer that redraws a one-line counter on
// stderr at most every 200ms.
func progressPrinter() simulator.Observer {
	var last time.Time
	return func(p simulator.Progress) {
		if p.Completed != p.Total && time.Since(last) < 200*time.Millisecond {
			return
		}
		last = time.Now()
		fmt.Fprintf(os.Stderr, "\r%d/%d iterations", p.Completed, p.Total)
	}
}

// writeReportFiles writes report.json, report.md, sample_paths.csv, and
// drawdown_cone.csv to the output directory.
func writeReportFiles(dir string, req api.SimulationRequest, resp api.SimulationResponse) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	jsonBody, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	files := map[string][]byte{
		"report.json": jsonBody,
		"report.md": []byte(reporting.RenderMarkdown(resp.Report, reporting.RenderOptions{
			Title:       "Monte Carlo Simulation Report",
			ReportID:    resp.ReportID,
			Source:      req.DSLSource,
			BaseSeed:    req.BaseSeed,
			InitialCash: req.InitialCash,
			GeneratedAt: time.Now().UTC(),
		})),
		"sample_paths.csv":  []byte(reporting.SamplePathsCSV(resp.Report)),
		"drawdown_cone.csv": []byte(reporting.DrawdownConeCSV(resp.Report)),
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// archiveReport inserts the report into the configured store. Memory storage
// only persists for the process lifetime, so it is rejected here.
func archiveReport(ctx context.Context, cfg config.Storage, req api.SimulationRequest, resp api.SimulationResponse) error {
	if cfg.UseMemory {
		return fmt.Errorf("archiving requires postgres_dsn (memory storage does not outlive the process)")
	}
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	store := pgstore.NewReportStore(pool)

	err = store.Insert(ctx, &storage.ReportRecord{
		ReportID:     resp.ReportID,
		Source:       req.DSLSource,
		ConfigDigest: idhash.ConfigDigest(req.Config),
		BaseSeed:     req.BaseSeed,
		InitialCash:  req.InitialCash,
		Iterations:   resp.Report.Iterations,
		TradingDays:  resp.Report.TradingDays,
		CreatedAt:    time.Now().UTC(),
		Report:       resp.Report,
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		slog.Info("report already archived", "report_id", resp.ReportID)
		return nil
	}
	return err
}

// verifyDeterminism replays the batch twice and compares every run and the
// aggregate report field by field.
func verifyDeterminism(ctx context.Context, req api.SimulationRequest) error {
	verifier := verification.NewReplayVerifier(simulator.Options{
		Config:      req.Config,
		Source:      req.DSLSource,
		InitialCash: req.InitialCash,
		BaseSeed:    req.BaseSeed,
		Analysis:    req.Analysis,
		Tax:         req.Tax,
		Costs:       req.Costs,
		Workers:     req.Workers,
	})
	report, err := verifier.VerifyDeterminism(ctx)
	if err != nil {
		return err
	}
	if !report.Match {
		return fmt.Errorf("replay diverged: %d of %d runs differ, %d report fields differ",
			report.DivergentRuns, report.TotalRuns, len(report.ReportDivergences))
	}
	return nil
}

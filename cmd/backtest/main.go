// Package main runs one historic backtest from the command line. The
// request carries the strategy source and either inline price series or
// ticker names resolved against the market-data store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"strategy-lab/internal/api"
	"strategy-lab/internal/config"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/reporting"
	"strategy-lab/internal/storage"
	chstore "strategy-lab/internal/storage/clickhouse"
)

// request is the CLI input: the engine request plus optional store-backed
// series loading.
type request struct {
	api.BacktestRequest
	Tickers []string  `json:"tickers,omitempty"`
	From    time.Time `json:"from,omitempty"`
	To      time.Time `json:"to,omitempty"`
}

func main() {
	requestPath := flag.String("request", "", "Path to JSON backtest request (required)")
	sourcePath := flag.String("source", "", "Path to strategy DSL file (overrides source in the request)")
	outputDir := flag.String("output", "", "Output directory for result files (default: stdout summary only)")
	configPath := flag.String("config", "", "Path to YAML host config (for store-backed series)")
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

	ctx := context.Background()
	if len(req.Series) == 0 && len(req.Tickers) > 0 {
		req.Series, err = loadSeries(ctx, cfg.Storage, req.Tickers, req.From, req.To)
		if err != nil {
			fatal("%v", err)
		}
	}

	resp := api.RunHistoricBacktest(req.BacktestRequest)
	if !resp.Success {
		fatal("backtest failed: %s", resp.Error)
	}

	fmt.Printf("Total return:      %+.2f%%\n", resp.TotalReturn*100)
	fmt.Printf("Benchmark return:  %+.2f%%\n", resp.BenchmarkReturn*100)
	fmt.Printf("Max drawdown:      %.2f%%\n", resp.MaxDrawdown*100)
	fmt.Printf("Sharpe ratio:      %.3f\n", resp.SharpeRatio)
	fmt.Printf("Volatility:        %.2f%%\n", resp.Volatility*100)
	fmt.Printf("Transactions:      %d\n", len(resp.Transactions))
	fmt.Printf("Costs:             commission %.2f, slippage %.2f, tax %.2f\n",
		resp.TotalCommission, resp.TotalSlippage, resp.TotalTax)

	if *outputDir != "" {
		if err := writeResultFiles(*outputDir, resp); err != nil {
			fatal("write result files: %v", err)
		}
		logger.Info("results written", "dir", *outputDir)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func loadRequest(requestPath, sourcePath string) (request, error) {
	var req request
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
		req.Source = string(source)
	}
	return req, nil
}

// loadSeries fetches daily bars for the named tickers from the market-data
// store.
func loadSeries(ctx context.Context, cfg config.Storage, tickers []string, from, to time.Time) (map[string][]domain.HistoricalPoint, error) {
	if cfg.UseMemory {
		return nil, fmt.Errorf("store-backed series require clickhouse_dsn; pass inline series instead")
	}
	conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	defer conn.Close()
	store := chstore.NewMarketDataStore(conn)

	series := make(map[string][]domain.HistoricalPoint, len(tickers))
	for _, ticker := range tickers {
		var bars []storage.Bar
		if from.IsZero() && to.IsZero() {
			bars, err = store.GetSeries(ctx, ticker)
		} else {
			bars, err = store.GetRange(ctx, ticker, from, to)
		}
		if err != nil {
			return nil, fmt.Errorf("load series for %q: %w", ticker, err)
		}
		series[ticker] = storage.HistoricalSeries(bars)
	}
	return series, nil
}

// writeResultFiles writes result.json and transactions.csv.
func writeResultFiles(dir string, resp api.BacktestResponse) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	body, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "result.json"), body, 0o644); err != nil {
		return err
	}
	csv := reporting.TransactionsCSV(resp.Transactions)
	return os.WriteFile(filepath.Join(dir, "transactions.csv"), []byte(csv), 0o644)
}

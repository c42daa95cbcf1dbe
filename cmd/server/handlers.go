package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"strategy-lab/internal/api"
	"strategy-lab/internal/config"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/idhash"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/reporting"
	"strategy-lab/internal/simulator"
	"strategy-lab/internal/storage"
)

// server holds handler dependencies.
type server struct {
	cfg    *config.Config
	stores *appStores
	logger *slog.Logger

	started     time.Time
	simulations atomic.Int64
	upgrader    websocket.Upgrader
}

func newServer(cfg *config.Config, stores *appStores, logger *slog.Logger) *server {
	return &server{
		cfg:     cfg,
		stores:  stores,
		logger:  logger,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The editor frontend is served from a different origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", s.handleStatus)

	mux.HandleFunc("/api/compile", s.handleCompile)
	mux.HandleFunc("/api/simulate", s.handleSimulate)
	mux.HandleFunc("/api/backtest", s.handleBacktest)
	mux.HandleFunc("/api/reports", s.handleReports)
	mux.HandleFunc("/api/reports/", s.handleReportByID)
	mux.HandleFunc("/api/tickers", s.handleTickers)

	mux.HandleFunc("/ws/simulate", s.handleSimulateWS)

	return mux
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorResponse is the envelope for request-level failures (bad JSON,
// missing resources). Engine failures travel inside the operation responses.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusResponse reports server liveness and counters.
type statusResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Simulations int64  `json:"simulations"`
	Storage     string `json:"storage"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	backend := "postgres+clickhouse"
	if s.cfg.Storage.UseMemory {
		backend = "memory"
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:      "running",
		Uptime:      time.Since(s.started).String(),
		Simulations: s.simulations.Load(),
		Storage:     backend,
	})
}

func (s *server) handleCompile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	resp := api.Compile(req)
	observability.RecordCompile(resp.IsValid)
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.SimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	resp := s.runSimulation(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

// runSimulation executes a batch, applies host defaults and limits, records
// metrics, and archives the report on success.
func (s *server) runSimulation(ctx context.Context, req api.SimulationRequest) api.SimulationResponse {
	if req.BaseSeed == 0 {
		req.BaseSeed = s.cfg.Simulation.DefaultSeed
	}
	if req.Workers == 0 {
		req.Workers = s.cfg.Simulation.Workers
	}
	if limit := s.cfg.Simulation.MaxIterations; limit > 0 && req.Config != nil && req.Config.Iterations > limit {
		return api.SimulationResponse{
			Error: fmt.Sprintf("iterations %d exceeds server limit %d", req.Config.Iterations, limit),
		}
	}

	observability.DefaultMetrics.SimulationsRunning.Inc()
	defer observability.DefaultMetrics.SimulationsRunning.Dec()
	start := time.Now()

	resp := api.RunSimulation(ctx, req)
	s.simulations.Add(1)

	if !resp.Success {
		observability.RecordSimulation("error", time.Since(start).Seconds())
		s.logger.Warn("simulation failed", "error", resp.Error)
		return resp
	}
	observability.RecordSimulation("success", time.Since(start).Seconds())
	observability.RecordIterations(resp.Report.Iterations)

	s.archiveReport(ctx, req, resp)
	return resp
}

// archiveReport persists the finished report. Archive failures are logged,
// not surfaced: the caller already has the report.
func (s *server) archiveReport(ctx context.Context, req api.SimulationRequest, resp api.SimulationResponse) {
	record := &storage.ReportRecord{
		ReportID:     resp.ReportID,
		Source:       req.DSLSource,
		ConfigDigest: idhash.ConfigDigest(req.Config),
		BaseSeed:     req.BaseSeed,
		InitialCash:  req.InitialCash,
		Iterations:   resp.Report.Iterations,
		TradingDays:  resp.Report.TradingDays,
		CreatedAt:    time.Now().UTC(),
		Report:       resp.Report,
	}

	start := time.Now()
	err := s.stores.reports.Insert(ctx, record)
	observability.RecordDBQuery("postgres", "insert_report", time.Since(start).Seconds(), err)
	switch {
	case errors.Is(err, storage.ErrDuplicateKey):
		// Identical source, config, seed, and cash: the stored report is
		// the same by construction.
		s.logger.Info("report already archived", "report_id", record.ReportID)
	case err != nil:
		s.logger.Error("archive report", "report_id", record.ReportID, "error", err)
	default:
		s.logger.Info("report archived", "report_id", record.ReportID,
			"iterations", record.Iterations)
	}
}

// backtestRequest extends the engine request with stored-data loading: when
// Series is empty, daily bars for Tickers are fetched from the market-data
// store over the optional From/To range.
type backtestRequest struct {
	api.BacktestRequest
	Tickers []string  `json:"tickers,omitempty"`
	From    time.Time `json:"from,omitempty"`
	To      time.Time `json:"to,omitempty"`
}

func (s *server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}

	if len(req.Series) == 0 && len(req.Tickers) > 0 {
		series, err := s.loadSeries(r.Context(), req.Tickers, req.From, req.To)
		if err != nil {
			writeJSON(w, http.StatusOK, api.BacktestResponse{Error: err.Error()})
			return
		}
		req.Series = series
	}

	start := time.Now()
	resp := api.RunHistoricBacktest(req.BacktestRequest)
	status := "success"
	if !resp.Success {
		status = "error"
	}
	observability.RecordBacktest(status, time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, resp)
}

// loadSeries fetches historical bars for each ticker from the market-data
// store.
func (s *server) loadSeries(ctx context.Context, tickers []string, from, to time.Time) (map[string][]domain.HistoricalPoint, error) {
	series := make(map[string][]domain.HistoricalPoint, len(tickers))
	for _, ticker := range tickers {
		var bars []storage.Bar
		var err error
		start := time.Now()
		if from.IsZero() && to.IsZero() {
			bars, err = s.stores.marketData.GetSeries(ctx, ticker)
		} else {
			bars, err = s.stores.marketData.GetRange(ctx, ticker, from, to)
		}
		observability.RecordDBQuery("clickhouse", "get_series", time.Since(start).Seconds(), err)
		if err != nil {
			return nil, fmt.Errorf("load series for %q: %w", ticker, err)
		}
		series[ticker] = storage.HistoricalSeries(bars)
	}
	return series, nil
}

func (s *server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	start := time.Now()
	records, err := s.stores.reports.List(r.Context(), limit)
	observability.RecordDBQuery("postgres", "list_reports", time.Since(start).Seconds(), err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("list reports: %v", err))
		return
	}

	summaries := make([]reportSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, newReportSummary(rec))
	}
	writeJSON(w, http.StatusOK, summaries)
}

// reportSummary is a list entry without the full report body.
type reportSummary struct {
	ReportID             string    `json:"reportId"`
	CreatedAt            time.Time `json:"createdAt"`
	Iterations           int       `json:"iterations"`
	TradingDays          int       `json:"tradingDays"`
	InitialCash          float64   `json:"initialCash"`
	BaseSeed             int64     `json:"baseSeed"`
	ProbabilityOfSuccess float64   `json:"probabilityOfSuccess"`
}

func newReportSummary(rec *storage.ReportRecord) reportSummary {
	s := reportSummary{
		ReportID:    rec.ReportID,
		CreatedAt:   rec.CreatedAt,
		Iterations:  rec.Iterations,
		TradingDays: rec.TradingDays,
		InitialCash: rec.InitialCash,
		BaseSeed:    rec.BaseSeed,
	}
	if rec.Report != nil {
		s.ProbabilityOfSuccess = rec.Report.ProbabilityOfSuccess
	}
	return s
}

func (s *server) handleReportByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/reports/")
	id, format, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing report id")
		return
	}

	start := time.Now()
	rec, err := s.stores.reports.GetByID(r.Context(), id)
	observability.RecordDBQuery("postgres", "get_report", time.Since(start).Seconds(), err)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("report %q not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("get report: %v", err))
		return
	}

	switch format {
	case "":
		writeJSON(w, http.StatusOK, rec)
	case "markdown":
		md := reporting.RenderMarkdown(rec.Report, reporting.RenderOptions{
			Title:       "Monte Carlo Simulation Report",
			ReportID:    rec.ReportID,
			Source:      rec.Source,
			BaseSeed:    rec.BaseSeed,
			InitialCash: rec.InitialCash,
			GeneratedAt: time.Now().UTC(),
		})
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(md))
	case "paths.csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Write([]byte(reporting.SamplePathsCSV(rec.Report)))
	case "cone.csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Write([]byte(reporting.DrawdownConeCSV(rec.Report)))
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown report format %q", format))
	}
}

func (s *server) handleTickers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	start := time.Now()
	tickers, err := s.stores.marketData.Tickers(r.Context())
	observability.RecordDBQuery("clickhouse", "tickers", time.Since(start).Seconds(), err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("list tickers: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, tickers)
}

// wsFrame is one message on the simulation progress stream.
type wsFrame struct {
	Type      string                  `json:"type"` // progress or result
	Completed int                     `json:"completed,omitempty"`
	Total     int                     `json:"total,omitempty"`
	Result    *api.SimulationResponse `json:"result,omitempty"`
}

// handleSimulateWS runs a batch and streams iteration progress. The client
// sends one SimulationRequest frame; the server replies with progress frames
// and a final result frame, then closes.
func (s *server) handleSimulateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	observability.DefaultMetrics.WSConnectionsActive.Inc()
	defer observability.DefaultMetrics.WSConnectionsActive.Dec()

	var req api.SimulationRequest
	if err := conn.ReadJSON(&req); err != nil {
		conn.WriteJSON(wsFrame{Type: "result", Result: &api.SimulationResponse{
			Error: fmt.Sprintf("decode request: %v", err),
		}})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The observer runs on worker goroutines and must not block, so progress
	// goes through a drop-on-full channel drained by a writer goroutine.
	progressCh := make(chan simulator.Progress, 64)
	req.Observer = func(p simulator.Progress) {
		select {
		case progressCh <- p:
		default:
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for p := range progressCh {
			frame := wsFrame{Type: "progress", Completed: p.Completed, Total: p.Total}
			if err := conn.WriteJSON(frame); err != nil {
				cancel()
				return
			}
			observability.DefaultMetrics.WSFramesSent.Inc()
		}
	}()

	resp := s.runSimulation(ctx, req)

	close(progressCh)
	<-writerDone

	if err := conn.WriteJSON(wsFrame{Type: "result", Result: &resp}); err != nil {
		s.logger.Warn("write result frame", "error", err)
		return
	}
	observability.DefaultMetrics.WSFramesSent.Inc()
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

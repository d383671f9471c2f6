package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mauv0809/good-morning/internal/ingest"
	"github.com/mauv0809/good-morning/internal/logging"
	"github.com/mauv0809/good-morning/internal/models"
	"github.com/mauv0809/good-morning/internal/observability"
)

// Downloader is the download surface used by the handlers.
type Downloader interface {
	DownloadKeyRatios(ctx context.Context, ticker string, opts ingest.KeyRatioOptions) ([]*ingest.Table, error)
	DownloadFinancials(ctx context.Context, ticker string) (*ingest.Financials, error)
	DownloadStatementTables(ctx context.Context, ticker string, report ingest.ReportType) ([]*ingest.Table, error)
}

// RunLog stores the outcome of every download.
type RunLog interface {
	RecordRun(ctx context.Context, run models.DownloadRun) (int64, error)
	RunCounts(ctx context.Context) ([]models.RunCount, error)
	LastRun(ctx context.Context) (*models.DownloadRun, error)
	KnownTickers(ctx context.Context) ([]string, error)
}

// IngestHandler handles data ingestion endpoints.
type IngestHandler struct {
	downloader Downloader
	runs       RunLog
	keyRatios  ingest.KeyRatioOptions
	delay      time.Duration
	logger     *logging.Logger
}

// NewIngestHandler creates a new ingest handler. runs may be nil when no
// database is configured.
func NewIngestHandler(d Downloader, runs RunLog, keyRatios ingest.KeyRatioOptions, delay time.Duration, logger *logging.Logger) *IngestHandler {
	if logger == nil {
		logger = logging.NewSilentLogger()
	}
	return &IngestHandler{
		downloader: d,
		runs:       runs,
		keyRatios:  keyRatios,
		delay:      delay,
		logger:     logger,
	}
}

// IngestResponse is the JSON response for ingestion endpoints.
type IngestResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Count   int            `json:"count,omitempty"`
	Elapsed string         `json:"elapsed,omitempty"`
	Results []TickerResult `json:"results,omitempty"`
}

// TickerResult is the outcome for one ticker of a multi-ticker run.
type TickerResult struct {
	Ticker string `json:"ticker"`
	Status string `json:"status"`
	Tables int    `json:"tables"`
	Error  string `json:"error,omitempty"`
}

// downloadFunc downloads one ticker and returns the number of tables.
type downloadFunc func(ctx context.Context, ticker string) (int, error)

// tickers parses the comma-separated ticker parameter, defaulting to every
// ticker with a successful run.
func (h *IngestHandler) tickers(c echo.Context) ([]string, error) {
	var tickers []string
	for _, t := range strings.Split(c.QueryParam("ticker"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tickers = append(tickers, t)
		}
	}
	if len(tickers) > 0 || h.runs == nil {
		return tickers, nil
	}
	return h.runs.KnownTickers(c.Request().Context())
}

// run downloads the tickers one after another, pausing between them.
// A failing ticker is recorded and skipped.
func (h *IngestHandler) run(c echo.Context, kind string, download downloadFunc) error {
	ctx := c.Request().Context()
	start := time.Now()

	tickers, err := h.tickers(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, IngestResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to get tickers: %v", err),
		})
	}
	if len(tickers) == 0 {
		return c.JSON(http.StatusBadRequest, IngestResponse{
			Success: false,
			Message: "ticker parameter is required (e.g., ?ticker=AAPL,MSFT)",
		})
	}

	h.logger.Info().Str("kind", kind).Strs("tickers", tickers).Msg("starting download")

	var (
		results []TickerResult
		total   int
		failed  int
		lastErr error
	)
	for i, ticker := range tickers {
		if i > 0 && h.delay > 0 {
			select {
			case <-ctx.Done():
				return c.JSON(http.StatusServiceUnavailable, IngestResponse{
					Success: false,
					Message: "request cancelled",
					Results: results,
				})
			case <-time.After(h.delay):
			}
		}

		started := time.Now()
		count, err := download(ctx, ticker)
		result := TickerResult{Ticker: ticker, Status: models.StatusOK, Tables: count}
		if err != nil {
			failed++
			lastErr = err
			result.Status = models.StatusFailed
			result.Error = err.Error()
			h.logger.Warn().Err(err).Str("ticker", ticker).Str("kind", kind).Msg("download failed")
		} else {
			total += count
		}
		results = append(results, result)
		observability.RecordDownload(kind, result.Status)
		h.record(ctx, kind, result, started)
	}

	elapsed := time.Since(start)
	h.logger.Info().
		Str("kind", kind).
		Int("tickers", len(tickers)).
		Int("failed", failed).
		Int("tables", total).
		Dur("elapsed", elapsed).
		Msg("download complete")

	resp := IngestResponse{
		Success: failed == 0,
		Message: fmt.Sprintf("Downloaded %d tables for %d of %d tickers", total, len(tickers)-failed, len(tickers)),
		Count:   total,
		Elapsed: elapsed.String(),
		Results: results,
	}
	if failed == len(tickers) {
		return c.JSON(statusFor(lastErr), resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *IngestHandler) record(ctx context.Context, kind string, result TickerResult, started time.Time) {
	if h.runs == nil {
		return
	}
	_, err := h.runs.RecordRun(ctx, models.DownloadRun{
		Ticker:     result.Ticker,
		Kind:       kind,
		Status:     result.Status,
		Message:    result.Error,
		TableCount: result.Tables,
		StartedAt:  started,
		FinishedAt: time.Now(),
	})
	if err != nil {
		h.logger.Error().Err(err).Str("ticker", result.Ticker).Msg("recording run")
	}
}

func (h *IngestHandler) keyRatioOptions(c echo.Context) ingest.KeyRatioOptions {
	opts := h.keyRatios
	if v := c.QueryParam("region"); v != "" {
		opts.Region = v
	}
	if v := c.QueryParam("culture"); v != "" {
		opts.Culture = v
	}
	if v := c.QueryParam("currency"); v != "" {
		opts.Currency = v
	}
	return opts
}

// IngestKeyRatios handles POST /admin/ingest/keyratios
// Query params:
// - ticker: comma-separated tickers (optional, defaults to known tickers)
// - region, culture, currency: key ratio export flavour
func (h *IngestHandler) IngestKeyRatios(c echo.Context) error {
	opts := h.keyRatioOptions(c)
	return h.run(c, models.KindKeyRatios, func(ctx context.Context, ticker string) (int, error) {
		tables, err := h.downloader.DownloadKeyRatios(ctx, ticker, opts)
		return len(tables), err
	})
}

// IngestFinancials handles POST /admin/ingest/financials
// Downloads income statement, balance sheet and cash flow.
func (h *IngestHandler) IngestFinancials(c echo.Context) error {
	return h.run(c, models.KindFinancials, func(ctx context.Context, ticker string) (int, error) {
		if _, err := h.downloader.DownloadFinancials(ctx, ticker); err != nil {
			return 0, err
		}
		return len(ingest.ReportTypes), nil
	})
}

// IngestStatements handles POST /admin/ingest/statements
// Downloads the sectioned CSV statements. Query params:
// - ticker: comma-separated tickers
// - report: is, bs or cf (default: all three)
func (h *IngestHandler) IngestStatements(c echo.Context) error {
	reports := ingest.ReportTypes
	if param := c.QueryParam("report"); param != "" {
		report, ok := ingest.ParseReportType(param)
		if !ok {
			return c.JSON(http.StatusBadRequest, IngestResponse{
				Success: false,
				Message: fmt.Sprintf("unknown report %q (use is, bs or cf)", param),
			})
		}
		reports = []ingest.ReportType{report}
	}

	return h.run(c, models.KindStatements, func(ctx context.Context, ticker string) (int, error) {
		count := 0
		for _, report := range reports {
			tables, err := h.downloader.DownloadStatementTables(ctx, ticker, report)
			if err != nil {
				return count, err
			}
			count += len(tables)
		}
		return count, nil
	})
}

// IngestStatus handles GET /admin/ingest/status
// Returns run counts and the most recent run.
func (h *IngestHandler) IngestStatus(c echo.Context) error {
	if h.runs == nil {
		return c.JSON(http.StatusServiceUnavailable, IngestResponse{
			Success: false,
			Message: "run log unavailable without a database",
		})
	}
	ctx := c.Request().Context()

	counts, err := h.runs.RunCounts(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, IngestResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to get run counts: %v", err),
		})
	}
	last, err := h.runs.LastRun(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, IngestResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to get last run: %v", err),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs":     counts,
		"last_run": last,
	})
}

// PreviewKeyRatios handles GET /tickers/:ticker/keyratios
// Downloads the key ratios (stored like any other download when a database
// is configured) and renders them as plain text.
func (h *IngestHandler) PreviewKeyRatios(c echo.Context) error {
	ticker := c.Param("ticker")
	tables, err := h.downloader.DownloadKeyRatios(c.Request().Context(), ticker, h.keyRatioOptions(c))
	if err != nil {
		return c.String(statusFor(err), err.Error())
	}

	var buf bytes.Buffer
	for i, table := range tables {
		if i > 0 {
			buf.WriteString("\n")
		}
		if err := table.Format(&buf); err != nil {
			return err
		}
	}
	return c.String(http.StatusOK, buf.String())
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/mauv0809/good-morning/internal/logging"
)

const (
	DefaultBaseURL     = "http://financials.morningstar.com"
	DefaultTablePrefix = "morningstar_"

	defaultRegion   = "GBR"
	defaultCulture  = "en_US"
	defaultCurrency = "USD"
)

var (
	tickerPattern   = regexp.MustCompile(`^[A-Za-z0-9.:\-^_]+$`)
	currencyPattern = regexp.MustCompile(`^.* ([A-Z]+) Mil$`)
)

// Fetcher retrieves a response body for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Downloader retrieves and normalizes Morningstar reports for one ticker at a
// time. It holds only configuration and collaborators and may be shared.
type Downloader struct {
	fetcher Fetcher
	store   Store
	logger  *logging.Logger
	baseURL string
	prefix  string
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithStore persists every download into s.
func WithStore(s Store) Option {
	return func(d *Downloader) { d.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Downloader) { d.logger = l }
}

// WithBaseURL points the downloader at another host, mainly for tests.
func WithBaseURL(u string) Option {
	return func(d *Downloader) { d.baseURL = strings.TrimRight(u, "/") }
}

// WithTablePrefix sets the prefix of every stored table name.
func WithTablePrefix(p string) Option {
	return func(d *Downloader) { d.prefix = p }
}

// NewDownloader creates a downloader that fetches through f.
func NewDownloader(f Fetcher, opts ...Option) *Downloader {
	d := &Downloader{
		fetcher: f,
		logger:  logging.NewSilentLogger(),
		baseURL: DefaultBaseURL,
		prefix:  DefaultTablePrefix,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ValidateTicker trims and checks a ticker symbol.
func ValidateTicker(ticker string) (string, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return "", fmt.Errorf("%w: you did not enter a ticker symbol, please try again", ErrInvalidInput)
	}
	if !tickerPattern.MatchString(ticker) {
		return "", fmt.Errorf("%w: ticker %q contains unsupported characters", ErrInvalidInput, ticker)
	}
	return ticker, nil
}

func notFound(ticker string) error {
	return fmt.Errorf("%w: morningstar cannot find the ticker symbol %q or it is invalid", ErrNotFound, ticker)
}

func (o KeyRatioOptions) withDefaults() KeyRatioOptions {
	if o.Region == "" {
		o.Region = defaultRegion
	}
	if o.Culture == "" {
		o.Culture = defaultCulture
	}
	if o.Currency == "" {
		o.Currency = defaultCurrency
	}
	return o
}

func (d *Downloader) keyRatiosURL(ticker string, opts KeyRatioOptions) string {
	return fmt.Sprintf("%s/ajax/exportKR2CSV.html?&callback=?&t=%s&region=%s&culture=%s&cur=%s",
		d.baseURL, url.QueryEscape(ticker),
		url.QueryEscape(opts.Region), url.QueryEscape(opts.Culture), url.QueryEscape(opts.Currency))
}

func (d *Downloader) statementURL(ticker string, report ReportType) string {
	return fmt.Sprintf("%s/ajax/ReportProcess4HtmlAjax.html?&t=%s&region=usa&culture=en-US&cur=USD"+
		"&reportType=%s&period=12&dataType=A&order=asc&columnYear=5&rounding=3&view=raw",
		d.baseURL, url.QueryEscape(ticker), report)
}

func (d *Downloader) statementCSVURL(ticker string, report ReportType) string {
	return fmt.Sprintf("%s/ajax/ReportProcess4CSV.html?&t=%s&region=usa&culture=en-US&cur="+
		"&reportType=%s&period=12&dataType=A&order=asc&columnYear=5&rounding=3&view=raw"+
		"&denominatorView=raw&number=3",
		d.baseURL, url.QueryEscape(ticker), report)
}

// currencySuffix extracts the reporting currency from a label such as
// "Revenue USD Mil".
func currencySuffix(label string) (string, bool) {
	m := currencyPattern.FindStringSubmatch(strings.TrimSpace(label))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// DownloadKeyRatios returns the key ratio tables of a ticker. The first table
// is named after the reporting currency, e.g. "Key Financials USD".
func (d *Downloader) DownloadKeyRatios(ctx context.Context, ticker string, opts KeyRatioOptions) ([]*Table, error) {
	ticker, err := ValidateTicker(ticker)
	if err != nil {
		return nil, err
	}
	log := d.logger.WithTicker(ticker)

	body, err := d.fetcher.Fetch(ctx, d.keyRatiosURL(ticker, opts.withDefaults()))
	if err != nil {
		return nil, err
	}

	layout, err := LookupLayout(LayoutKeyRatios)
	if err != nil {
		return nil, err
	}
	tables, err := layout.Tables(body)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound(ticker)
		}
		return nil, err
	}
	if len(tables) == 0 {
		return nil, notFound(ticker)
	}

	first := tables[0]
	if code, ok := currencySuffix(first.Rows[0].Label); ok {
		first.Name = first.Name + " " + code
	} else {
		log.Warn().Str("label", first.Rows[0].Label).Msg("no currency in first key ratio row")
	}

	log.Info().Int("tables", len(tables)).Msg("key ratios parsed")

	if err := d.persistTables(ctx, ticker, tables); err != nil {
		return nil, err
	}
	return tables, nil
}

// DownloadFinancials returns the income statement, balance sheet and cash
// flow of a ticker. Units and the period axis are taken from the income
// statement.
func (d *Downloader) DownloadFinancials(ctx context.Context, ticker string) (*Financials, error) {
	ticker, err := ValidateTicker(ticker)
	if err != nil {
		return nil, err
	}
	log := d.logger.WithTicker(ticker)

	f := &Financials{}
	for _, report := range ReportTypes {
		stmt, meta, err := d.downloadStatement(ctx, ticker, report)
		if err != nil {
			return nil, err
		}

		switch report {
		case IncomeStatement:
			f.IncomeStatement = stmt
			f.Periods = stmt.Periods
			f.FiscalYearEnd = meta.FiscalYearEnd
			f.Currency = meta.Currency
		case BalanceSheet:
			f.BalanceSheet = stmt
		case CashFlow:
			f.CashFlow = stmt
		}

		if meta.FiscalYearEnd != f.FiscalYearEnd || meta.Currency != f.Currency {
			log.Warn().
				Str("report", report.TableName()).
				Str("currency", meta.Currency).
				Int("fiscal_year_end", int(meta.FiscalYearEnd)).
				Msg("statement units differ from income statement")
		}
		if !stmt.Periods.Equal(f.Periods) {
			log.Warn().
				Str("report", report.TableName()).
				Strs("periods", stmt.Periods.Strings()).
				Msg("statement periods differ from income statement")
		}
	}

	log.Info().
		Str("currency", f.Currency).
		Int("fiscal_year_end", int(f.FiscalYearEnd)).
		Int("periods", len(f.Periods)).
		Msg("financials parsed")

	if err := d.persistFinancials(ctx, ticker, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (d *Downloader) downloadStatement(ctx context.Context, ticker string, report ReportType) (*Statement, TickerMetadata, error) {
	body, err := d.fetcher.Fetch(ctx, d.statementURL(ticker, report))
	if err != nil {
		return nil, TickerMetadata{}, err
	}
	html, err := decodeEnvelope(body)
	if err != nil {
		return nil, TickerMetadata{}, fmt.Errorf("%s: %w", report.TableName(), err)
	}
	stmt, meta, err := ParseStatement(report.TableName(), html)
	if err != nil {
		return nil, TickerMetadata{}, fmt.Errorf("%s: %w", report.TableName(), err)
	}
	meta.Ticker = ticker
	return stmt, meta, nil
}

// DownloadStatementTables returns the CSV export of one statement cut into
// its sections.
func (d *Downloader) DownloadStatementTables(ctx context.Context, ticker string, report ReportType) ([]*Table, error) {
	ticker, err := ValidateTicker(ticker)
	if err != nil {
		return nil, err
	}
	layout, err := StatementLayout(report)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	body, err := d.fetcher.Fetch(ctx, d.statementCSVURL(ticker, report))
	if err != nil {
		return nil, err
	}

	tables, err := layout.Tables(body)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound(ticker)
		}
		return nil, err
	}
	if len(tables) == 0 {
		return nil, notFound(ticker)
	}

	d.logger.WithTicker(ticker).Info().
		Str("report", report.TableName()).
		Int("tables", len(tables)).
		Msg("statement tables parsed")

	if err := d.persistTables(ctx, ticker, tables); err != nil {
		return nil, err
	}
	return tables, nil
}

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fetchSpy serves canned bodies by URL substring and records every call.
type fetchSpy struct {
	mu     sync.Mutex
	calls  []string
	bodies map[string][]byte
	err    error
}

func (f *fetchSpy) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	for key, body := range f.bodies {
		if strings.Contains(url, key) {
			return body, nil
		}
	}
	return nil, nil
}

// memStore is an in-memory Store.
type memStore struct {
	created map[string]TableSchema
	rows    map[string][]Record
}

func newMemStore() *memStore {
	return &memStore{created: map[string]TableSchema{}, rows: map[string][]Record{}}
}

func (m *memStore) TableExists(_ context.Context, table string) (bool, error) {
	_, ok := m.created[table]
	return ok, nil
}

func (m *memStore) CreateTable(_ context.Context, schema TableSchema) error {
	if _, ok := m.created[schema.Name]; ok {
		return errors.New("table already exists")
	}
	m.created[schema.Name] = schema
	return nil
}

func (m *memStore) UpsertRows(_ context.Context, schema TableSchema, ticker string, records []Record) error {
	m.rows[schema.Name+"/"+ticker] = records
	return nil
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	body, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return body
}

func envelope(t *testing.T, html []byte) []byte {
	t.Helper()
	body, err := json.Marshal(statementEnvelope{Result: string(html)})
	require.NoError(t, err)
	return body
}

func TestDownloader_RejectsTickerBeforeFetch(t *testing.T) {
	ctx := context.Background()
	for _, ticker := range []string{"", "   ", "AAPL;DROP", "a b"} {
		spy := &fetchSpy{}
		d := NewDownloader(spy)

		_, err := d.DownloadKeyRatios(ctx, ticker, KeyRatioOptions{})
		assert.ErrorIs(t, err, ErrInvalidInput, "%q", ticker)
		_, err = d.DownloadFinancials(ctx, ticker)
		assert.ErrorIs(t, err, ErrInvalidInput, "%q", ticker)
		_, err = d.DownloadStatementTables(ctx, ticker, IncomeStatement)
		assert.ErrorIs(t, err, ErrInvalidInput, "%q", ticker)

		assert.Empty(t, spy.calls, "no fetch for %q", ticker)
	}
}

func TestDownloadKeyRatios_Fixture(t *testing.T) {
	spy := &fetchSpy{bodies: map[string][]byte{"exportKR2CSV": readFixture(t, "keyratios.csv")}}
	d := NewDownloader(spy, WithBaseURL("http://example.test/"))

	tables, err := d.DownloadKeyRatios(context.Background(), " AAPL ", KeyRatioOptions{})
	require.NoError(t, err)

	require.Len(t, spy.calls, 1)
	assert.Equal(t,
		"http://example.test/ajax/exportKR2CSV.html?&callback=?&t=AAPL&region=GBR&culture=en_US&cur=USD",
		spy.calls[0])

	require.Len(t, tables, 11)
	assert.Equal(t, "Key Financials USD", tables[0].Name)
	assert.Equal(t, "Key Margins % of Sales", tables[1].Name)
	for _, table := range tables {
		assert.True(t, table.Periods.Equal(tables[0].Periods))
	}
}

func TestDownloadKeyRatios_Options(t *testing.T) {
	spy := &fetchSpy{bodies: map[string][]byte{"exportKR2CSV": readFixture(t, "keyratios.csv")}}
	d := NewDownloader(spy)

	_, err := d.DownloadKeyRatios(context.Background(), "XNAS:AAPL", KeyRatioOptions{Region: "usa", Culture: "en-US", Currency: "EUR"})
	require.NoError(t, err)
	assert.Contains(t, spy.calls[0], "t=XNAS%3AAAPL&region=usa&culture=en-US&cur=EUR")
	assert.True(t, strings.HasPrefix(spy.calls[0], DefaultBaseURL))
}

func TestDownloadKeyRatios_EmptyResponse(t *testing.T) {
	for name, body := range map[string][]byte{
		"nil":        nil,
		"blank":      []byte("\r\n\r\n"),
		"title only": []byte("We're sorry.\r\nThere is no data available.\r\n"),
	} {
		t.Run(name, func(t *testing.T) {
			d := NewDownloader(&fetchSpy{bodies: map[string][]byte{"exportKR2CSV": body}})
			_, err := d.DownloadKeyRatios(context.Background(), "NOPE", KeyRatioOptions{})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDownloadKeyRatios_FetchErrorUnchanged(t *testing.T) {
	boom := errors.New("connection reset")
	d := NewDownloader(&fetchSpy{err: boom})

	_, err := d.DownloadKeyRatios(context.Background(), "AAPL", KeyRatioOptions{})
	assert.Equal(t, boom, err)

	_, err = d.DownloadFinancials(context.Background(), "AAPL")
	assert.Equal(t, boom, err)
}

func TestDownloadKeyRatios_NoCurrency(t *testing.T) {
	body := []byte("Financials\n,2013-09,2014-09,2015-09,2016-09,2017-09\nRevenue,1,2,3,4,5\n")
	d := NewDownloader(&fetchSpy{bodies: map[string][]byte{"exportKR2CSV": body}})

	tables, err := d.DownloadKeyRatios(context.Background(), "AAPL", KeyRatioOptions{})
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "Key Financials", tables[0].Name)
}

func TestDownloadKeyRatios_Persists(t *testing.T) {
	store := newMemStore()
	spy := &fetchSpy{bodies: map[string][]byte{"exportKR2CSV": readFixture(t, "keyratios.csv")}}
	d := NewDownloader(spy, WithStore(store), WithTablePrefix("ms_"))

	_, err := d.DownloadKeyRatios(context.Background(), "AAPL", KeyRatioOptions{})
	require.NoError(t, err)
	assert.Len(t, store.created, 11)

	records := store.rows["ms_key_financials_usd/AAPL"]
	require.Len(t, records, 6)
	assert.Equal(t, time.Date(2010, time.September, 30, 0, 0, 0, 0, time.UTC), records[0].Key)

	// a second run finds the tables and only upserts
	_, err = d.DownloadKeyRatios(context.Background(), "MSFT", KeyRatioOptions{})
	require.NoError(t, err)
	assert.Len(t, store.created, 11)
	assert.Contains(t, store.rows, "ms_key_financials_usd/MSFT")
}

func TestDownloadFinancials(t *testing.T) {
	body := envelope(t, readFixture(t, "statement.html"))
	spy := &fetchSpy{bodies: map[string][]byte{"ReportProcess4HtmlAjax": body}}
	store := newMemStore()
	d := NewDownloader(spy, WithStore(store))

	f, err := d.DownloadFinancials(context.Background(), "AAPL")
	require.NoError(t, err)

	require.Len(t, spy.calls, 3)
	for i, report := range []string{"is", "bs", "cf"} {
		assert.Contains(t, spy.calls[i], "reportType="+report+"&")
	}

	assert.Equal(t, time.September, f.FiscalYearEnd)
	assert.Equal(t, "USD", f.Currency)
	assert.Equal(t, "2010-09", f.Periods[0].String())
	require.NotNil(t, f.IncomeStatement)
	require.NotNil(t, f.BalanceSheet)
	require.NotNil(t, f.CashFlow)
	assert.Equal(t, "balance_sheet", f.BalanceSheet.Name)
	assert.Len(t, f.Statements(), 3)

	assert.Contains(t, store.created, "morningstar_income_statement")
	assert.Contains(t, store.created, "morningstar_balance_sheet")
	assert.Contains(t, store.created, "morningstar_cash_flow")
	assert.Contains(t, store.created, "morningstar_unit")
	assert.Equal(t, []any{9, "USD"}, store.rows["morningstar_unit/AAPL"][0].Values)
	assert.Len(t, store.rows["morningstar_income_statement/AAPL"], 7)
}

func TestDownloadFinancials_EmptyEnvelope(t *testing.T) {
	d := NewDownloader(&fetchSpy{bodies: map[string][]byte{"ReportProcess4HtmlAjax": []byte(`{"result":""}`)}})

	_, err := d.DownloadFinancials(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestDownloadStatementTables(t *testing.T) {
	spy := &fetchSpy{bodies: map[string][]byte{"ReportProcess4CSV": readFixture(t, "income_statement.csv")}}
	d := NewDownloader(spy)

	tables, err := d.DownloadStatementTables(context.Background(), "AAPL", IncomeStatement)
	require.NoError(t, err)
	require.Len(t, tables, 6)
	assert.Equal(t, "IS Financials USD Mil", tables[0].Name)
	assert.Contains(t, spy.calls[0], "reportType=is&")
	assert.Contains(t, spy.calls[0], "denominatorView=raw&number=3")
}

func TestDownloadStatementTables_UnknownReport(t *testing.T) {
	spy := &fetchSpy{}
	_, err := NewDownloader(spy).DownloadStatementTables(context.Background(), "AAPL", ReportType("xx"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, spy.calls)
}

func TestCurrencySuffix(t *testing.T) {
	code, ok := currencySuffix("Revenue USD Mil")
	assert.True(t, ok)
	assert.Equal(t, "USD", code)

	code, ok = currencySuffix("Revenue GBP Mil ")
	assert.True(t, ok)
	assert.Equal(t, "GBP", code)

	_, ok = currencySuffix("Revenue")
	assert.False(t, ok)
}

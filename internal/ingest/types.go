package ingest

import (
	"time"
)

// RawSegment is a named block of CSV rows cut out of a line-oriented response.
type RawSegment struct {
	Name string
	Rows [][]string
}

// ExpectedSection pairs the section name the feed is expected to carry at a
// given position with the name of the table it becomes. An empty Output drops
// the section even when the name matches.
type ExpectedSection struct {
	Match  string `yaml:"match"`
	Output string `yaml:"output"`
}

// MappedSection is a segment that survived schema mapping but has not yet
// been given a period axis or typed values.
type MappedSection struct {
	Name string
	Rows [][]string
}

// Value is a float that may be missing.
type Value struct {
	Float float64
	Valid bool
}

// Some returns a present value.
func Some(f float64) Value { return Value{Float: f, Valid: true} }

// Missing returns an absent value.
func Missing() Value { return Value{} }

// Ptr returns nil for a missing value.
func (v Value) Ptr() *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float
	return &f
}

// Row is one labelled line of a Table.
type Row struct {
	Label  string
	Values []Value
}

// Table is a normalized, period-indexed table. Every row carries exactly
// len(Periods) values and labels are unique.
type Table struct {
	Name    string
	Periods PeriodAxis
	Rows    []Row
}

// Labels returns the row labels in order.
func (t *Table) Labels() []string {
	labels := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		labels[i] = r.Label
	}
	return labels
}

// Lookup returns the value for a row label and period.
func (t *Table) Lookup(label string, p Period) (Value, bool) {
	col := t.Periods.Index(p)
	if col < 0 {
		return Value{}, false
	}
	for _, r := range t.Rows {
		if r.Label == label {
			return r.Values[col], true
		}
	}
	return Value{}, false
}

// LabelNode is one row title read from a statement's label tree. Index is the
// pre-order position and the join key to the data tree.
type LabelNode struct {
	ID          string
	Index       int
	ParentIndex int
	Title       string
}

// StatementRow is a label node with its values, one per period.
type StatementRow struct {
	LabelNode
	Values []Value
}

// Statement is a hierarchical financial statement (income statement, balance
// sheet or cash flow) ordered by row index.
type Statement struct {
	Name    string
	Periods PeriodAxis
	Rows    []StatementRow
}

// TickerMetadata carries the per-ticker unit information.
type TickerMetadata struct {
	Ticker        string
	FiscalYearEnd time.Month
	Currency      string
}

// Financials is the result of a statement download.
type Financials struct {
	IncomeStatement *Statement
	BalanceSheet    *Statement
	CashFlow        *Statement
	Periods         PeriodAxis
	FiscalYearEnd   time.Month
	Currency        string
}

// Statements returns the three statements keyed by report name.
func (f *Financials) Statements() map[string]*Statement {
	return map[string]*Statement{
		IncomeStatement.TableName(): f.IncomeStatement,
		BalanceSheet.TableName():    f.BalanceSheet,
		CashFlow.TableName():        f.CashFlow,
	}
}

// KeyRatioOptions selects the regional flavour of the key ratio export.
type KeyRatioOptions struct {
	Region   string
	Culture  string
	Currency string
}

// ReportType identifies a financial statement report.
type ReportType string

const (
	IncomeStatement ReportType = "is"
	BalanceSheet    ReportType = "bs"
	CashFlow        ReportType = "cf"
)

// ReportTypes lists the statement reports in download order.
var ReportTypes = []ReportType{IncomeStatement, BalanceSheet, CashFlow}

// TableName returns the report's output name.
func (r ReportType) TableName() string {
	switch r {
	case IncomeStatement:
		return "income_statement"
	case BalanceSheet:
		return "balance_sheet"
	case CashFlow:
		return "cash_flow"
	}
	return string(r)
}

// ParseReportType accepts either the short code or the output name.
func ParseReportType(s string) (ReportType, bool) {
	for _, r := range ReportTypes {
		if s == string(r) || s == r.TableName() {
			return r, true
		}
	}
	return "", false
}

package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// maxIdentifierLength is the PostgreSQL identifier limit in bytes.
const maxIdentifierLength = 63

var (
	nonAlnumPattern   = regexp.MustCompile(`[^a-z0-9]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Store persists downloaded tables. Implementations upsert by row key so a
// repeated download overwrites the previous values.
type Store interface {
	TableExists(ctx context.Context, table string) (bool, error)
	CreateTable(ctx context.Context, schema TableSchema) error
	UpsertRows(ctx context.Context, schema TableSchema, ticker string, records []Record) error
}

// ColumnType is the storage type of a column.
type ColumnType int

const (
	ColumnNumeric ColumnType = iota
	ColumnInteger
	ColumnText
	ColumnDate
)

// Column is a table column. Comment keeps the original label.
type Column struct {
	Name    string
	Comment string
	Type    ColumnType
}

// TableSchema describes a ticker-keyed table. A zero Key means the ticker
// alone is the primary key.
type TableSchema struct {
	Name    string
	Comment string
	Key     Column
	Columns []Column
}

// HasKey reports whether rows are keyed by (ticker, Key).
func (s TableSchema) HasKey() bool { return s.Key.Name != "" }

// Record is one row of a TableSchema. Values align with Columns; numeric
// cells are carried as Value.
type Record struct {
	Key    any
	Values []any
}

// DBName turns a label into a lowercase identifier.
func DBName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "/", " per ")
	name = strings.ReplaceAll(name, "&", " and ")
	name = strings.ReplaceAll(name, "%", " percent ")
	name = nonAlnumPattern.ReplaceAllString(name, " ")
	name = strings.TrimSpace(whitespacePattern.ReplaceAllString(name, " "))
	return truncateIdentifier(strings.ReplaceAll(name, " ", "_"))
}

func truncateIdentifier(name string) string {
	if len(name) > maxIdentifierLength {
		return strings.TrimRight(name[:maxIdentifierLength], "_")
	}
	return name
}

// TableName returns the storage name of a table.
func TableName(prefix, name string) string {
	return truncateIdentifier(prefix + DBName(name))
}

// columnNames assigns unique identifiers to labels. Labels that sanitize to
// the same identifier get _2, _3 and so on.
func columnNames(labels []string, reserved ...string) []string {
	seen := make(map[string]int, len(labels)+len(reserved))
	for _, r := range reserved {
		seen[r] = 1
	}
	names := make([]string, len(labels))
	for i, label := range labels {
		name := DBName(label)
		if name == "" {
			name = "column"
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			suffix := fmt.Sprintf("_%d", n)
			name = truncateIdentifier(name[:min(len(name), maxIdentifierLength-len(suffix))]) + suffix
		}
		names[i] = name
	}
	return names
}

// RatioTablePlan lays a period-indexed table out as one row per period and
// one column per label.
func RatioTablePlan(prefix string, t *Table) (TableSchema, []Record) {
	labels := t.Labels()
	names := columnNames(labels, "ticker", "period")

	schema := TableSchema{
		Name:    TableName(prefix, t.Name),
		Comment: t.Name,
		Key:     Column{Name: "period", Comment: "Period", Type: ColumnDate},
		Columns: make([]Column, len(labels)),
	}
	for i, label := range labels {
		schema.Columns[i] = Column{Name: names[i], Comment: label, Type: ColumnNumeric}
	}

	records := make([]Record, len(t.Periods))
	for col, p := range t.Periods {
		values := make([]any, len(t.Rows))
		for i, row := range t.Rows {
			values[i] = row.Values[col]
		}
		records[col] = Record{Key: p.End(), Values: values}
	}
	return schema, records
}

// StatementTablePlan lays a statement out as one row per line item with its
// parent and one column per fiscal year.
func StatementTablePlan(prefix string, s *Statement) (TableSchema, []Record) {
	schema := TableSchema{
		Name:    TableName(prefix, s.Name),
		Comment: s.Name,
		Key:     Column{Name: "id", Comment: "Row index", Type: ColumnInteger},
		Columns: []Column{
			{Name: "parent_id", Comment: "Parent row index", Type: ColumnInteger},
			{Name: "item", Comment: "Line item", Type: ColumnText},
		},
	}
	for _, p := range s.Periods {
		schema.Columns = append(schema.Columns, Column{
			Name:    fmt.Sprintf("year_%04d", p.Year),
			Comment: p.String(),
			Type:    ColumnNumeric,
		})
	}

	records := make([]Record, len(s.Rows))
	for i, row := range s.Rows {
		values := make([]any, 0, 2+len(row.Values))
		values = append(values, row.ParentIndex, row.Title)
		for _, v := range row.Values {
			values = append(values, v)
		}
		records[i] = Record{Key: row.Index, Values: values}
	}
	return schema, records
}

// UnitTablePlan stores the fiscal year end and currency of a ticker.
func UnitTablePlan(prefix string, meta TickerMetadata) (TableSchema, []Record) {
	schema := TableSchema{
		Name:    TableName(prefix, "unit"),
		Comment: "Units and fiscal year",
		Columns: []Column{
			{Name: "fiscal_year_end", Comment: "Fiscal year end month", Type: ColumnInteger},
			{Name: "currency", Comment: "Reporting currency", Type: ColumnText},
		},
	}
	return schema, []Record{{Values: []any{int(meta.FiscalYearEnd), meta.Currency}}}
}

package ingest

import (
	"context"
	"fmt"
)

// ensureTable creates the table on first use.
func (d *Downloader) ensureTable(ctx context.Context, schema TableSchema) error {
	exists, err := d.store.TableExists(ctx, schema.Name)
	if err != nil {
		return fmt.Errorf("checking table %s: %w", schema.Name, err)
	}
	if exists {
		return nil
	}
	d.logger.Debug().Str("table", schema.Name).Msg("creating table")
	if err := d.store.CreateTable(ctx, schema); err != nil {
		return fmt.Errorf("creating table %s: %w", schema.Name, err)
	}
	return nil
}

func (d *Downloader) write(ctx context.Context, ticker string, schema TableSchema, records []Record) error {
	if err := d.ensureTable(ctx, schema); err != nil {
		return err
	}
	if err := d.store.UpsertRows(ctx, schema, ticker, records); err != nil {
		return fmt.Errorf("upserting into %s: %w", schema.Name, err)
	}
	return nil
}

// persistTables writes period-indexed tables.
func (d *Downloader) persistTables(ctx context.Context, ticker string, tables []*Table) error {
	if d.store == nil {
		return nil
	}
	for _, t := range tables {
		schema, records := RatioTablePlan(d.prefix, t)
		if err := d.write(ctx, ticker, schema, records); err != nil {
			return err
		}
	}
	return nil
}

// persistFinancials writes the three statements and the unit row.
func (d *Downloader) persistFinancials(ctx context.Context, ticker string, f *Financials) error {
	if d.store == nil {
		return nil
	}
	for _, report := range ReportTypes {
		stmt := f.Statements()[report.TableName()]
		if stmt == nil {
			continue
		}
		schema, records := StatementTablePlan(d.prefix, stmt)
		if err := d.write(ctx, ticker, schema, records); err != nil {
			return err
		}
	}

	schema, records := UnitTablePlan(d.prefix, TickerMetadata{
		Ticker:        ticker,
		FiscalYearEnd: f.FiscalYearEnd,
		Currency:      f.Currency,
	})
	return d.write(ctx, ticker, schema, records)
}

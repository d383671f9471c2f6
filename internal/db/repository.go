package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mauv0809/good-morning/internal/ingest"
	"github.com/mauv0809/good-morning/internal/models"
	"github.com/shopspring/decimal"
)

// PgxPool is the subset of *pgxpool.Pool used by the repository.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var _ PgxPool = (*pgxpool.Pool)(nil)

var _ ingest.Store = (*Repository)(nil)

const (
	tableExistsQuery = `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1
	)`

	insertRunQuery = `
		INSERT INTO download_runs (ticker, kind, status, message, table_count, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	runCountsQuery = `
		SELECT kind, status, COUNT(*)
		FROM download_runs
		GROUP BY kind, status
		ORDER BY kind, status`

	lastRunQuery = `
		SELECT id, ticker, kind, status, message, table_count, started_at, finished_at
		FROM download_runs
		ORDER BY started_at DESC, id DESC
		LIMIT 1`

	knownTickersQuery = `
		SELECT DISTINCT ticker
		FROM download_runs
		WHERE status = 'ok'
		ORDER BY ticker`
)

// Repository handles database operations for downloaded data.
type Repository struct {
	pool PgxPool
}

// NewRepository creates a new repository.
func NewRepository(pool PgxPool) *Repository {
	return &Repository{pool: pool}
}

// TableExists reports whether a table exists in the current schema.
func (r *Repository) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, tableExistsQuery, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return exists, nil
}

// CreateTable creates the table with its comments.
func (r *Repository) CreateTable(ctx context.Context, schema ingest.TableSchema) error {
	if _, err := r.pool.Exec(ctx, createTableSQL(schema)); err != nil {
		return fmt.Errorf("creating table %s: %w", schema.Name, err)
	}
	return nil
}

// UpsertRows inserts or updates records keyed by ticker and the schema key.
// Columns that appeared since the table was created are added first.
func (r *Repository) UpsertRows(ctx context.Context, schema ingest.TableSchema, ticker string, records []ingest.Record) error {
	if len(records) == 0 {
		return nil
	}

	if len(schema.Columns) > 0 {
		if _, err := r.pool.Exec(ctx, addColumnsSQL(schema)); err != nil {
			return fmt.Errorf("adding columns to %s: %w", schema.Name, err)
		}
	}

	query := upsertSQL(schema)
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(query, upsertArgs(schema, ticker, rec)...)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting into %s: %w", schema.Name, err)
		}
	}

	return nil
}

// RecordRun appends a run to the run log and returns its id.
func (r *Repository) RecordRun(ctx context.Context, run models.DownloadRun) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, insertRunQuery,
		run.Ticker, run.Kind, run.Status, run.Message, run.TableCount, run.StartedAt, run.FinishedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}
	return id, nil
}

// RunCounts returns the number of runs per kind and status.
func (r *Repository) RunCounts(ctx context.Context) ([]models.RunCount, error) {
	rows, err := r.pool.Query(ctx, runCountsQuery)
	if err != nil {
		return nil, fmt.Errorf("querying run counts: %w", err)
	}
	defer rows.Close()

	var counts []models.RunCount
	for rows.Next() {
		var c models.RunCount
		if err := rows.Scan(&c.Kind, &c.Status, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}

// LastRun returns the most recent run, or nil when the log is empty.
func (r *Repository) LastRun(ctx context.Context) (*models.DownloadRun, error) {
	var run models.DownloadRun
	err := r.pool.QueryRow(ctx, lastRunQuery).Scan(
		&run.ID, &run.Ticker, &run.Kind, &run.Status, &run.Message,
		&run.TableCount, &run.StartedAt, &run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last run: %w", err)
	}
	return &run, nil
}

// KnownTickers returns every ticker with at least one successful run.
func (r *Repository) KnownTickers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, knownTickersQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, err
		}
		tickers = append(tickers, ticker)
	}

	return tickers, rows.Err()
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func columnType(t ingest.ColumnType) string {
	switch t {
	case ingest.ColumnInteger:
		return "INTEGER"
	case ingest.ColumnText:
		return "TEXT"
	case ingest.ColumnDate:
		return "DATE"
	default:
		return "NUMERIC(20,5)"
	}
}

func keyColumns(schema ingest.TableSchema) []string {
	if schema.HasKey() {
		return []string{quoteIdent("ticker"), quoteIdent(schema.Key.Name)}
	}
	return []string{quoteIdent("ticker")}
}

// createTableSQL renders the DDL and comments as one simple-protocol script.
func createTableSQL(schema ingest.TableSchema) string {
	table := quoteIdent(schema.Name)

	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	sb.WriteString("  \"ticker\" VARCHAR(50) NOT NULL,\n")
	if schema.HasKey() {
		fmt.Fprintf(&sb, "  %s %s NOT NULL,\n", quoteIdent(schema.Key.Name), columnType(schema.Key.Type))
	}
	for _, c := range schema.Columns {
		fmt.Fprintf(&sb, "  %s %s,\n", quoteIdent(c.Name), columnType(c.Type))
	}
	sb.WriteString("  \"updated_at\" TIMESTAMPTZ NOT NULL DEFAULT NOW(),\n")
	fmt.Fprintf(&sb, "  PRIMARY KEY (%s)\n);\n", strings.Join(keyColumns(schema), ", "))

	fmt.Fprintf(&sb, "COMMENT ON TABLE %s IS %s;\n", table, quoteLiteral(schema.Comment))
	if schema.HasKey() && schema.Key.Comment != "" {
		fmt.Fprintf(&sb, "COMMENT ON COLUMN %s.%s IS %s;\n", table, quoteIdent(schema.Key.Name), quoteLiteral(schema.Key.Comment))
	}
	for _, c := range schema.Columns {
		if c.Comment == "" {
			continue
		}
		fmt.Fprintf(&sb, "COMMENT ON COLUMN %s.%s IS %s;\n", table, quoteIdent(c.Name), quoteLiteral(c.Comment))
	}
	return sb.String()
}

func addColumnsSQL(schema ingest.TableSchema) string {
	clauses := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		clauses[i] = fmt.Sprintf("ADD COLUMN IF NOT EXISTS %s %s", quoteIdent(c.Name), columnType(c.Type))
	}
	return fmt.Sprintf("ALTER TABLE %s %s", quoteIdent(schema.Name), strings.Join(clauses, ", "))
}

func upsertSQL(schema ingest.TableSchema) string {
	keys := keyColumns(schema)
	columns := append([]string{}, keys...)
	updates := make([]string, 0, len(schema.Columns)+1)
	for _, c := range schema.Columns {
		name := quoteIdent(c.Name)
		columns = append(columns, name)
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", name, name))
	}
	updates = append(updates, `"updated_at" = NOW()`)

	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		quoteIdent(schema.Name),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(keys, ", "),
		strings.Join(updates, ", "),
	)
}

func upsertArgs(schema ingest.TableSchema, ticker string, rec ingest.Record) []any {
	args := make([]any, 0, 2+len(rec.Values))
	args = append(args, ticker)
	if schema.HasKey() {
		args = append(args, rec.Key)
	}
	for _, v := range rec.Values {
		args = append(args, dbValue(v))
	}
	return args
}

// dbValue converts numeric cells to NUMERIC(20,5) values; NULL when missing.
func dbValue(v any) any {
	switch x := v.(type) {
	case ingest.Value:
		if !x.Valid {
			return decimal.NullDecimal{}
		}
		return decimal.NullDecimal{Decimal: decimal.NewFromFloat(x.Float).Round(5), Valid: true}
	default:
		return v
	}
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"replenishment/internal/core"
	"replenishment/internal/drafts"
	"replenishment/internal/sheets"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db     *sql.DB
	schema SchemaStatus
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	schema, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("Database schema ready",
		"path", dbPath,
		"version", schema.Version,
		"latest", schema.Latest)

	return &SQLiteRepository{db: db, schema: schema}, nil
}

// Schema returns the migration state found when the repository was opened.
func (r *SQLiteRepository) Schema() SchemaStatus {
	return r.schema
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping implements the readiness check.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const periodColumns = `start_year, end_year, amount, previously_unused, export_status`

func scanPeriod(row interface{ Scan(...any) error }) (core.Period, error) {
	var (
		p              core.Period
		amount, unused decimal.Decimal
		status         string
	)
	if err := row.Scan(&p.StartYear, &p.EndYear, &amount, &unused, &status); err != nil {
		return core.Period{}, err
	}
	p.Amount = amount
	p.PreviouslyUnused = unused
	p.ExportStatus = core.ExportStatus(status)
	return p, nil
}

// ListPeriods implements sheets.PeriodReader
func (r *SQLiteRepository) ListPeriods(ctx context.Context) ([]core.Period, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+periodColumns+` FROM periods ORDER BY start_year DESC`)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	defer rows.Close()

	var out []core.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPeriod implements sheets.PeriodReader
func (r *SQLiteRepository) GetPeriod(ctx context.Context, key string) (core.Period, error) {
	p, err := scanPeriod(r.db.QueryRowContext(ctx,
		`SELECT `+periodColumns+` FROM periods WHERE period_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Period{}, fmt.Errorf("%w: %s", core.ErrPeriodNotFound, key)
	}
	if err != nil {
		return core.Period{}, fmt.Errorf("get period %s: %w", key, err)
	}
	return p, nil
}

// UpsertPeriod implements sheets.PeriodWriter
func (r *SQLiteRepository) UpsertPeriod(ctx context.Context, p core.Period) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO periods (period_key, start_year, end_year, amount, previously_unused)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(period_key) DO UPDATE SET
			amount = excluded.amount,
			previously_unused = excluded.previously_unused,
			updated_at = CURRENT_TIMESTAMP`,
		p.Key(), p.StartYear, p.EndYear, p.Amount.String(), p.PreviouslyUnused.String())
	if err != nil {
		return fmt.Errorf("upsert period: %w", err)
	}

	slog.InfoContext(ctx, "Period saved to SQLite",
		"period", p.Key(),
		"amount", p.Amount.String(),
		"previously_unused", p.PreviouslyUnused.String())
	return nil
}

// ListContributions implements sheets.ContributionReader
func (r *SQLiteRepository) ListContributions(ctx context.Context, periodKey string) ([]core.ContributionRecord, error) {
	if _, err := r.GetPeriod(ctx, periodKey); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, country_id, country, iso3, un_soa, adj_un_soa, avg_ir,
		       qual_ferm, opted_for_ferm, ferm_cur, ferm_rate
		FROM contributions
		WHERE period_key = ?
		ORDER BY position, id`, periodKey)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var out []core.ContributionRecord
	for rows.Next() {
		var (
			id                int64
			rec               core.ContributionRecord
			un, adj, ir, rate decimal.NullDecimal
			qual, opted       sql.NullBool
			cur               sql.NullString
		)
		if err := rows.Scan(&id, &rec.CountryID, &rec.Country, &rec.ISO3,
			&un, &adj, &ir, &qual, &opted, &cur, &rate); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		rec.InitialID = strconv.FormatInt(id, 10)
		rec.UnSoA = decimalField(un)
		rec.AdjUnSoA = decimalField(adj)
		rec.AvgIR = decimalField(ir)
		rec.FERMRate = decimalField(rate)
		rec.QualFERM = boolField(qual)
		rec.OptedForFERM = boolField(opted)
		if cur.Valid {
			rec.FERMCur = core.Value(cur.String)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReplaceContributions implements sheets.ContributionWriter. Rows keep their
// id when the record's initial id names a row of the same period.
func (r *SQLiteRepository) ReplaceContributions(ctx context.Context, periodKey string, records []core.ContributionRecord) (int64, error) {
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return 0, fmt.Errorf("record %s: %w", rec.ISO3, err)
		}
		iso := strings.ToUpper(strings.TrimSpace(rec.ISO3))
		if seen[iso] {
			return 0, fmt.Errorf("%w: %s", core.ErrDuplicateRecord, iso)
		}
		seen[iso] = true
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var version int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM periods WHERE period_key = ?`, periodKey).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", core.ErrPeriodNotFound, periodKey)
	}
	if err != nil {
		return 0, fmt.Errorf("read period version: %w", err)
	}

	reusable, err := periodRowIDs(ctx, tx, periodKey)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM contributions WHERE period_key = ?`, periodKey); err != nil {
		return 0, fmt.Errorf("clear contributions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contributions (id, period_key, position, country_id, country, iso3,
			un_soa, adj_un_soa, avg_ir, qual_ferm, opted_for_ferm, ferm_cur, ferm_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		var id any
		if n, err := strconv.ParseInt(rec.InitialID, 10, 64); err == nil && reusable[n] {
			id = n
			delete(reusable, n)
		}
		_, err := stmt.ExecContext(ctx, id, periodKey, i, rec.CountryID, rec.Country, rec.ISO3,
			nullDecimal(rec.UnSoA.Effective()),
			nullDecimal(rec.AdjUnSoA.Effective()),
			nullDecimal(rec.AvgIR.Effective()),
			nullBool(rec.QualFERM.Effective()),
			nullBool(rec.OptedForFERM.Effective()),
			nullString(rec.FERMCur.Effective()),
			nullDecimal(rec.FERMRate.Effective()))
		if err != nil {
			return 0, fmt.Errorf("insert contribution %s: %w", rec.ISO3, err)
		}
	}

	version++
	if _, err := tx.ExecContext(ctx, `
		UPDATE periods
		SET version = ?, export_status = 'pending', saved_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE period_key = ?`, version, time.Now().UTC(), periodKey); err != nil {
		return 0, fmt.Errorf("bump period version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit contributions: %w", err)
	}

	slog.InfoContext(ctx, "Contributions saved to SQLite",
		"period", periodKey,
		"records", len(records),
		"version", version)
	return version, nil
}

// periodRowIDs returns the contribution ids currently stored for a period.
// Ids from other periods are never reused.
func periodRowIDs(ctx context.Context, tx *sql.Tx, periodKey string) (map[int64]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM contributions WHERE period_key = ?`, periodKey)
	if err != nil {
		return nil, fmt.Errorf("read contribution ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan contribution id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// PendingExports implements sheets.ExportTracker
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]sheets.PendingExport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT period_key, version, saved_at
		FROM periods
		WHERE export_status = 'pending' AND version > exported_version
		ORDER BY saved_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending exports: %w", err)
	}
	defer rows.Close()

	var out []sheets.PendingExport
	for rows.Next() {
		var (
			p       sheets.PendingExport
			savedAt sql.NullTime
		)
		if err := rows.Scan(&p.PeriodKey, &p.Version, &savedAt); err != nil {
			return nil, fmt.Errorf("scan pending export: %w", err)
		}
		p.SavedAt = savedAt.Time
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkExported records a successful export. Older versions are ignored so a
// slow export never hides a newer save.
func (r *SQLiteRepository) MarkExported(ctx context.Context, periodKey string, version int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE periods
		SET exported_version = ?, export_status = 'synced', updated_at = CURRENT_TIMESTAMP
		WHERE period_key = ? AND version <= ?`, version, periodKey, version)
	if err != nil {
		return fmt.Errorf("mark period exported: %w", err)
	}

	slog.InfoContext(ctx, "Period marked as exported", "period", periodKey, "version", version)
	return nil
}

// MarkExportError flags the current version as failed.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, periodKey string, version int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE periods
		SET export_status = 'error', updated_at = CURRENT_TIMESTAMP
		WHERE period_key = ? AND version = ?`, periodKey, version)
	if err != nil {
		return fmt.Errorf("mark period export error: %w", err)
	}

	slog.WarnContext(ctx, "Period marked with export error", "period", periodKey, "version", version)
	return nil
}

// PutDraft implements drafts.Store
func (r *SQLiteRepository) PutDraft(ctx context.Context, key string, data []byte, savedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO drafts (draft_key, data, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(draft_key) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		key, data, savedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("put draft: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetDraft(ctx context.Context, key string) ([]byte, time.Time, error) {
	var (
		data    []byte
		savedAt int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT data, saved_at FROM drafts WHERE draft_key = ?`, key).Scan(&data, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, drafts.ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("get draft: %w", err)
	}
	return data, time.UnixMilli(savedAt).UTC(), nil
}

func (r *SQLiteRepository) DeleteDraft(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE draft_key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return drafts.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) PurgeDrafts(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE saved_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge drafts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge drafts: %w", err)
	}
	return int(n), nil
}

func decimalField(v decimal.NullDecimal) core.Field[decimal.Decimal] {
	if !v.Valid {
		return core.Field[decimal.Decimal]{}
	}
	return core.Value(v.Decimal)
}

func boolField(v sql.NullBool) core.Field[bool] {
	if !v.Valid {
		return core.Field[bool]{}
	}
	return core.Value(v.Bool)
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

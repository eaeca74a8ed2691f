// Package storage is a SQLite-backed state.Store.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"fiftythirty/internal/core"
	"fiftythirty/internal/log"
	"fiftythirty/internal/state"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// SQLiteStore persists the snapshot in three tables: expenses (in insertion
// order), monthly_incomes and a single settings row.
type SQLiteStore struct {
	db     *sql.DB
	logger *log.Logger
}

var _ state.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string, logger *log.Logger) (*SQLiteStore, error) {
	logger = log.OrDiscard(logger)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serialises writers, which is all this store needs.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("SQLite store ready", log.FieldFile, dbPath, "schema_version", version)

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load reads the whole snapshot. A database that was never saved to
// returns an error wrapping os.ErrNotExist.
func (s *SQLiteStore) Load(ctx context.Context) (state.Snapshot, error) {
	snap := state.Default()

	var b50, b30, b20, legacyMonth string
	var legacyCents int64
	err := s.db.QueryRowContext(ctx,
		`SELECT bucket50, bucket30, bucket20, legacy_income_cents, legacy_income_month FROM settings WHERE id = 1`,
	).Scan(&b50, &b30, &b20, &legacyCents, &legacyMonth)
	if errors.Is(err, sql.ErrNoRows) {
		return state.Snapshot{}, fmt.Errorf("no saved state: %w", os.ErrNotExist)
	}
	if err != nil {
		return state.Snapshot{}, fmt.Errorf("read settings: %w", err)
	}
	for _, r := range []struct {
		dst *core.Ratio
		raw string
	}{{&snap.Ratios.Needs, b50}, {&snap.Ratios.Wants, b30}, {&snap.Ratios.Savings, b20}} {
		d, err := decimal.NewFromString(r.raw)
		if err != nil {
			return state.Snapshot{}, fmt.Errorf("parse ratio %q: %w", r.raw, err)
		}
		*r.dst = core.RatioFromDecimal(d)
	}
	snap.LegacyIncome = core.Money{Cents: legacyCents}
	if legacyMonth != "" {
		if d, err := core.ParseDate(legacyMonth); err == nil {
			snap.LegacyIncomeMonth = d
		}
	}

	incomes, err := s.loadIncomes(ctx)
	if err != nil {
		return state.Snapshot{}, err
	}
	snap.Incomes = core.IncomeLedgerFromMap(incomes)

	snap.Expenses, err = s.loadExpenses(ctx)
	if err != nil {
		return state.Snapshot{}, err
	}
	return snap, nil
}

func (s *SQLiteStore) loadIncomes(ctx context.Context) (map[string]core.Money, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT month_key, amount_cents FROM monthly_incomes`)
	if err != nil {
		return nil, fmt.Errorf("query incomes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]core.Money)
	for rows.Next() {
		var key string
		var cents int64
		if err := rows.Scan(&key, &cents); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		out[key] = core.Money{Cents: cents}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadExpenses(ctx context.Context) ([]core.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, amount_cents, category, description, budget_bucket FROM expenses ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		var date, category, description, bucket string
		var cents int64
		if err := rows.Scan(&date, &cents, &category, &description, &bucket); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		d, err := core.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("parse expense date %q: %w", date, err)
		}
		out = append(out, core.Expense{
			Date:        d,
			Amount:      core.Money{Cents: cents},
			Category:    category,
			Description: description,
			Bucket:      core.Bucket(bucket),
		})
	}
	return out, rows.Err()
}

// Save replaces the stored snapshot in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap state.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{`DELETE FROM expenses`, `DELETE FROM monthly_incomes`} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear tables: %w", err)
		}
	}

	legacyMonth := ""
	if !snap.LegacyIncomeMonth.IsZero() {
		legacyMonth = snap.LegacyIncomeMonth.Format(dateLayout)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO settings (id, bucket50, bucket30, bucket20, legacy_income_cents, legacy_income_month, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			bucket50 = excluded.bucket50,
			bucket30 = excluded.bucket30,
			bucket20 = excluded.bucket20,
			legacy_income_cents = excluded.legacy_income_cents,
			legacy_income_month = excluded.legacy_income_month,
			updated_at = CURRENT_TIMESTAMP`,
		snap.Ratios.Needs.String(), snap.Ratios.Wants.String(), snap.Ratios.Savings.String(),
		snap.LegacyIncome.Cents, legacyMonth)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}

	for _, e := range snap.Incomes.Entries() {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO monthly_incomes (month_key, amount_cents) VALUES (?, ?)`, e.Month, e.Amount.Cents); err != nil {
			return fmt.Errorf("insert income %s: %w", e.Month, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO expenses (position, date, amount_cents, category, description, budget_bucket) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare expense insert: %w", err)
	}
	defer stmt.Close()
	for i, e := range snap.Expenses {
		if _, err = stmt.ExecContext(ctx, i, e.Date.Format(dateLayout), e.Amount.Cents, e.Category, e.Description, string(e.Bucket)); err != nil {
			return fmt.Errorf("insert expense %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.DebugContext(ctx, "State saved to SQLite", log.FieldCount, len(snap.Expenses))
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"solvtrack/internal/model"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, eris.New("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) QueryByPeriod(ctx context.Context, period string) ([]model.StatRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sector, company_cd, company_nm, account_cd, account_nm, period, unit, value, collected_at
		FROM solvency_rows
		WHERE period = ?
	`, period)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query by period")
	}
	defer rows.Close()

	results := make([]model.StatRow, 0)
	for rows.Next() {
		var row model.StatRow
		var sector string
		var value sql.NullFloat64
		var collectedAt string
		if err := rows.Scan(&sector, &row.CompanyCode, &row.CompanyName, &row.AccountCode, &row.AccountName, &row.Period, &row.Unit, &value, &collectedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		row.Sector = model.Sector(sector)
		if value.Valid {
			v := value.Float64
			row.Value = &v
		}
		if parsed, err := time.Parse(time.RFC3339, collectedAt); err == nil {
			row.CollectedAt = parsed
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate rows")
	}

	return results, nil
}

// AppendRows writes rows with a server-assigned collection timestamp.
// The conflict key (sector, company_cd, account_cd, period) makes a
// duplicate write converge on the latest value instead of doubling the
// row.
func (s *Store) AppendRows(ctx context.Context, rows []model.StatRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO solvency_rows (
			sector, company_cd, company_nm, account_cd, account_nm, period, unit, value, collected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sector, company_cd, account_cd, period)
		DO UPDATE SET
			company_nm = excluded.company_nm,
			account_nm = excluded.account_nm,
			unit = excluded.unit,
			value = excluded.value,
			collected_at = excluded.collected_at
	`)
	if err != nil {
		_ = tx.Rollback()
		return eris.Wrap(err, "sqlite: prepare append")
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i := range rows {
		row := rows[i]
		var value any
		if row.Value != nil {
			value = *row.Value
		}
		_, err = stmt.ExecContext(
			ctx,
			string(row.Sector),
			row.CompanyCode,
			row.CompanyName,
			row.AccountCode,
			row.AccountName,
			row.Period,
			row.Unit,
			value,
			now,
		)
		if err != nil {
			_ = tx.Rollback()
			return eris.Wrap(err, "sqlite: append row")
		}
	}

	if err = tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit append")
	}
	return nil
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS solvency_rows (
			sector TEXT NOT NULL,
			company_cd TEXT NOT NULL,
			company_nm TEXT NOT NULL,
			account_cd TEXT NOT NULL,
			account_nm TEXT NOT NULL,
			period TEXT NOT NULL,
			unit TEXT NOT NULL DEFAULT '',
			value REAL,
			collected_at TEXT NOT NULL,
			PRIMARY KEY (sector, company_cd, account_cd, period)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return eris.Wrap(err, "sqlite: migrate")
		}
	}

	return nil
}

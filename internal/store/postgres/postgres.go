// Package postgres backs the cache with a hosted analytical store.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"solvtrack/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, eris.New("postgres: dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}

	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *Store) QueryByPeriod(ctx context.Context, period string) ([]model.StatRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sector, company_cd, company_nm, account_cd, account_nm, period, unit, value, collected_at
		FROM solvency_rows
		WHERE period = $1
	`, period)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query by period")
	}
	defer rows.Close()

	results := make([]model.StatRow, 0)
	for rows.Next() {
		var row model.StatRow
		var sector string
		var value *float64
		var collectedAt time.Time
		if err := rows.Scan(&sector, &row.CompanyCode, &row.CompanyName, &row.AccountCode, &row.AccountName, &row.Period, &row.Unit, &value, &collectedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan row")
		}
		row.Sector = model.Sector(sector)
		row.Value = value
		row.CollectedAt = collectedAt
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate rows")
	}

	return results, nil
}

// AppendRows upserts the batch in one transaction. The conflict key
// matches the sqlite store so both backends converge on duplicate
// writes.
func (s *Store) AppendRows(ctx context.Context, rows []model.StatRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return eris.Wrap(err, "postgres: begin append")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	now := time.Now().UTC()
	for i := range rows {
		row := rows[i]
		_, err := tx.Exec(ctx, `
			INSERT INTO solvency_rows (
				sector, company_cd, company_nm, account_cd, account_nm, period, unit, value, collected_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (sector, company_cd, account_cd, period)
			DO UPDATE SET
				company_nm = excluded.company_nm,
				account_nm = excluded.account_nm,
				unit = excluded.unit,
				value = excluded.value,
				collected_at = excluded.collected_at
		`,
			string(row.Sector),
			row.CompanyCode,
			row.CompanyName,
			row.AccountCode,
			row.AccountName,
			row.Period,
			row.Unit,
			row.Value,
			now,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: append row")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit append")
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS solvency_rows (
			sector TEXT NOT NULL,
			company_cd TEXT NOT NULL,
			company_nm TEXT NOT NULL,
			account_cd TEXT NOT NULL,
			account_nm TEXT NOT NULL,
			period TEXT NOT NULL,
			unit TEXT NOT NULL DEFAULT '',
			value DOUBLE PRECISION,
			collected_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (sector, company_cd, account_cd, period)
		)
	`)
	if err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

package store

import (
	"context"

	"solvtrack/internal/model"
)

// Store is the durable cache of collected rows. Reads use the period as
// an opaque equality key; writes assign the collection timestamp.
type Store interface {
	QueryByPeriod(ctx context.Context, period string) ([]model.StatRow, error)
	AppendRows(ctx context.Context, rows []model.StatRow) error
	Close() error
}

// NopStore stands in when no cache is configured: empty reads, silent
// no-writes, so a collection run proceeds as if starting cold.
type NopStore struct{}

func (s *NopStore) QueryByPeriod(ctx context.Context, period string) ([]model.StatRow, error) {
	_ = ctx
	_ = period
	return nil, nil
}

func (s *NopStore) AppendRows(ctx context.Context, rows []model.StatRow) error {
	_ = ctx
	_ = rows
	return nil
}

func (s *NopStore) Close() error {
	return nil
}

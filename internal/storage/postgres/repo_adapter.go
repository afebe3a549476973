package postgres

import (
	"context"

	"github.com/dr3s/csv-wrangler/internal/storage"
)

// newRepository is a test hook; tests replace it to avoid a real database.
var newRepository = func(ctx context.Context, cfg Config) (repository, func(), error) {
	return NewRepository(ctx, cfg)
}

// repository is the method set the adapter forwards.
type repository interface {
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	Exec(ctx context.Context, sql string) error
}

// wrappedRepo adds Close, backed by the pool's close function.
type wrappedRepo struct {
	repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDDL("postgres", Dialect)
}

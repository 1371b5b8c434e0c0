package ingest

import (
	"context"

	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

// PgTransactor runs units of work on Postgres transactions.
type PgTransactor struct {
	Repo *storage.Repository
}

func (p PgTransactor) Do(ctx context.Context, fn func(UnitOfWork) error) error {
	return p.Repo.InTx(ctx, func(tx *storage.Tx) error {
		return fn(tx)
	})
}

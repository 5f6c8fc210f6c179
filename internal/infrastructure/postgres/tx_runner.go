package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/application/ledger"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/repository"
)

var (
	_ ledger.TxRunner   = (*TxRunner)(nil)
	_ ledger.UnitOfWork = (*UnitOfWork)(nil)
)

// UnitOfWork repositorios del ledger atados a un mismo Querier (pool o tx).
// Un flujo que ya tiene su pgx.Tx abierta usa NewUnitOfWork(tx) y llama a las operaciones *InTx.
type UnitOfWork struct {
	stocks    *TechnicianStockRepo
	movements *MaterialMovementRepo
}

// NewUnitOfWork construye la unidad de trabajo sobre q.
func NewUnitOfWork(q Querier) *UnitOfWork {
	return &UnitOfWork{
		stocks:    NewTechnicianStockRepository(q),
		movements: NewMaterialMovementRepository(q),
	}
}

func (u *UnitOfWork) Stocks() repository.TechnicianStockRepository       { return u.stocks }
func (u *UnitOfWork) Movements() repository.MaterialMovementRepository { return u.movements }

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// Run inicia una transacción READ COMMITTED, ejecuta fn con repos atados a la tx y hace
// Commit o Rollback. La serialización entre escritores la da el SELECT FOR UPDATE.
func (r *TxRunner) Run(ctx context.Context, fn func(uow ledger.UnitOfWork) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewUnitOfWork(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapErr("commit transaction", err)
	}
	return nil
}

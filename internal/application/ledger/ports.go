package ledger

import (
	"context"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/entity"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/repository"
)

// UnitOfWork agrupa los repositorios atados a una misma transacción.
// Un flujo mayor (p. ej. asignación de orden) construye el suyo desde su propia
// transacción y lo pasa a las operaciones *InTx para compartir el Commit/Rollback.
type UnitOfWork interface {
	Stocks() repository.TechnicianStockRepository
	Movements() repository.MaterialMovementRepository
}

// TxRunner ejecuta fn dentro de una transacción nueva: Commit si fn no falla, Rollback si falla.
type TxRunner interface {
	Run(ctx context.Context, fn func(uow UnitOfWork) error) error
}

// StockReportGenerator genera la representación imprimible del inventario de un técnico.
type StockReportGenerator interface {
	GenerateStockReport(
		ctx context.Context,
		stock *entity.TechnicianStock,
		summary entity.StockSummary,
		movements []*entity.MaterialMovement,
	) ([]byte, error)
}

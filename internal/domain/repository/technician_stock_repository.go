package repository

import (
	"context"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/entity"
)

// TechnicianStockRepository puerto de persistencia de los registros de stock por técnico.
// Las implementaciones pueden estar atadas a una transacción (ver ledger.UnitOfWork).
type TechnicianStockRepository interface {
	// Get devuelve (nil, nil) si el técnico no tiene registro.
	Get(ctx context.Context, technicianID string) (*entity.TechnicianStock, error)
	// GetForUpdate como Get pero bloquea el registro hasta el fin de la transacción.
	GetForUpdate(ctx context.Context, technicianID string) (*entity.TechnicianStock, error)
	// Create inserta el registro; no hace nada si ya existe.
	Create(ctx context.Context, stock *entity.TechnicianStock) error
	// Save persiste el agregado si su Version coincide con la almacenada y la incrementa.
	// Devuelve domain.ErrWriteConflict si otra escritura se adelantó.
	Save(ctx context.Context, stock *entity.TechnicianStock) error
}

package repository

import (
	"context"
	"time"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/entity"
)

// MovementFilter filtros para el historial de movimientos. Los campos vacíos no filtran.
type MovementFilter struct {
	Kind              entity.MovementKind
	MaterialID        string
	VisibleToAnalysts *bool
	From              *time.Time
	To                *time.Time
	// BeforeID cursor de paginación: solo movimientos anteriores (occurred_at, orden de
	// inserción) al movimiento con ese ID. Un ID desconocido es un ValidationError.
	BeforeID string
	Limit    int
}

// MaterialMovementRepository puerto del ledger de movimientos (solo inserción).
type MaterialMovementRepository interface {
	Append(ctx context.Context, movement *entity.MaterialMovement) error
	// List devuelve los movimientos más recientes primero (occurred_at DESC).
	List(ctx context.Context, technicianID string, filter MovementFilter) ([]*entity.MaterialMovement, error)
}

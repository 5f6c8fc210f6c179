package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind tipo de movimiento del ledger.
type MovementKind string

// Tipos de movimiento.
const (
	MovementKindReserve MovementKind = "reserve" // apartar
	MovementKindConsume MovementKind = "consume" // consumo en obra
	MovementKindReturn  MovementKind = "return"  // liberar lo apartado
	MovementKindAdjust  MovementKind = "adjust"  // ajuste manual
)

// Valid indica si k es un tipo conocido.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementKindReserve, MovementKindConsume, MovementKindReturn, MovementKindAdjust:
		return true
	}
	return false
}

// Dirección de un ajuste.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Orígenes habituales.
const (
	OriginWorkOrder = "work-order"
	OriginManual    = "manual"
)

// MaterialMovement entrada inmutable del ledger. Quantity siempre > 0.
type MaterialMovement struct {
	ID                string
	TechnicianID      string
	MaterialID        string
	Kind              MovementKind
	Quantity          decimal.Decimal
	Direction         string // solo ajustes: in | out
	Reason            string
	VisibleToAnalysts bool
	ActorID           string
	Origin            string
	OriginReferenceID string
	OccurredAt        time.Time
}

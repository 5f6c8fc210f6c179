package ledger

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain"
)

// ReserveInput entrada de Reserve. OriginReferenceID suele ser el ID de la orden.
type ReserveInput struct {
	TechnicianID      string
	MaterialID        string
	Quantity          decimal.Decimal
	Reason            string
	Origin            string // por defecto "work-order"
	OriginReferenceID string
	ActorID           string
}

// ConsumeInput entrada de CommitConsumption. OrderReference es la referencia legible
// (póliza/contrato) que se usa para el motivo del movimiento.
type ConsumeInput struct {
	TechnicianID      string
	MaterialID        string
	Quantity          decimal.Decimal
	Origin            string
	OriginReferenceID string
	OrderReference    string
	ActorID           string
}

// ReturnInput entrada de ReturnMaterial.
type ReturnInput struct {
	TechnicianID      string
	MaterialID        string
	Quantity          decimal.Decimal
	Reason            string
	Origin            string
	OriginReferenceID string
	ActorID           string
}

// AdjustInput entrada de Adjust. Delta con signo y distinto de cero.
type AdjustInput struct {
	TechnicianID       string
	MaterialID         string
	Delta              decimal.Decimal
	Reason             string
	OriginReferenceID  string
	ActorID            string
	HiddenFromAnalysts bool
}

func validateLine(technicianID, materialID, actorID string, qty decimal.Decimal) error {
	if strings.TrimSpace(technicianID) == "" {
		return domain.NewValidationError("technician_id", "es obligatorio")
	}
	if strings.TrimSpace(materialID) == "" {
		return domain.NewValidationError("material_id", "es obligatorio")
	}
	if strings.TrimSpace(actorID) == "" {
		return domain.NewValidationError("actor_id", "es obligatorio")
	}
	return validateQuantity("quantity", qty)
}

// QuantityScale decimales que admite el ledger; coincide con NUMERIC(18,4) en Postgres.
const QuantityScale = 4

var maxQuantity = decimal.New(1, 18-QuantityScale)

func validateQuantity(field string, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return domain.NewValidationError(field, "debe ser mayor que cero")
	}
	if !qty.Equal(qty.Truncate(QuantityScale)) {
		return domain.NewValidationError(field, "admite como máximo 4 decimales")
	}
	if qty.GreaterThanOrEqual(maxQuantity) {
		return domain.NewValidationError(field, "excede el máximo permitido")
	}
	return nil
}

func (in ReserveInput) validate() error {
	return validateLine(in.TechnicianID, in.MaterialID, in.ActorID, in.Quantity)
}

func (in ConsumeInput) validate() error {
	return validateLine(in.TechnicianID, in.MaterialID, in.ActorID, in.Quantity)
}

func (in ReturnInput) validate() error {
	return validateLine(in.TechnicianID, in.MaterialID, in.ActorID, in.Quantity)
}

func (in AdjustInput) validate() error {
	if err := validateLine(in.TechnicianID, in.MaterialID, in.ActorID, decimal.NewFromInt(1)); err != nil {
		return err
	}
	if in.Delta.IsZero() {
		return domain.NewValidationError("delta", "no puede ser cero")
	}
	if err := validateQuantity("delta", in.Delta.Abs()); err != nil {
		return err
	}
	if strings.TrimSpace(in.Reason) == "" {
		return domain.NewValidationError("reason", "es obligatorio en ajustes")
	}
	return nil
}

func originOrDefault(origin, def string) string {
	if origin == "" {
		return def
	}
	return origin
}

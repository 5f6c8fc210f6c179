package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Errores de dominio del ledger de inventario de técnicos.
var (
	ErrNotFound                  = errors.New("recurso no encontrado")
	ErrTechnicianStockNotFound   = fmt.Errorf("%w: inventario del técnico no encontrado", ErrNotFound)
	ErrMaterialNotFound          = fmt.Errorf("%w: material no encontrado en el inventario del técnico", ErrNotFound)
	ErrInvalidInput              = errors.New("entrada inválida")
	ErrUnauthorized              = errors.New("no autorizado")
	ErrForbidden                 = errors.New("acceso denegado")
	ErrConflict                  = errors.New("conflicto con el estado actual")
	ErrInsufficientStock         = fmt.Errorf("%w: stock insuficiente", ErrConflict)
	ErrInsufficientReservedStock = fmt.Errorf("%w: stock apartado insuficiente", ErrConflict)
	// ErrWriteConflict escritura concurrente detectada por el store (versión o serialización).
	ErrWriteConflict = errors.New("conflicto de escritura concurrente")
	// ErrTryAgain se devuelve cuando se agotan los reintentos por ErrWriteConflict.
	ErrTryAgain = errors.New("operación no completada, intente de nuevo")
)

// ValidationError describe un campo inválido; errors.Is(err, ErrInvalidInput) es true.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("entrada inválida: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NewValidationError construye un ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StockConflictError reporta las cifras reales frente a lo solicitado.
// Kind es ErrInsufficientStock o ErrInsufficientReservedStock.
type StockConflictError struct {
	Kind       error
	MaterialID string
	Current    decimal.Decimal // disponible o apartado, según Kind
	Requested  decimal.Decimal
}

func (e *StockConflictError) Error() string {
	if e.Kind == ErrInsufficientReservedStock {
		return fmt.Sprintf("stock apartado insuficiente: apartado %s, devolución %s", e.Current.String(), e.Requested.String())
	}
	return fmt.Sprintf("stock insuficiente: disponible %s, solicitado %s", e.Current.String(), e.Requested.String())
}

func (e *StockConflictError) Unwrap() error { return e.Kind }

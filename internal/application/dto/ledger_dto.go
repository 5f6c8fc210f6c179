package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/entity"
)

// MovementRequest body para reservas, consumos y devoluciones.
type MovementRequest struct {
	MaterialID        string          `json:"material_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	Reason            string          `json:"reason,omitempty"`
	Origin            string          `json:"origin,omitempty"`              // por defecto work-order
	OriginReferenceID string          `json:"origin_reference_id,omitempty"` // ID de la orden
	OrderReference    string          `json:"order_reference,omitempty"`     // solo consumos
}

// AdjustmentRequest body para POST .../adjustments. Delta con signo.
type AdjustmentRequest struct {
	MaterialID         string          `json:"material_id"`
	Delta              decimal.Decimal `json:"delta"`
	Reason             string          `json:"reason"`
	OriginReferenceID  string          `json:"origin_reference_id,omitempty"`
	HiddenFromAnalysts bool            `json:"hidden_from_analysts,omitempty"`
}

// StockLineDTO línea de material del técnico.
type StockLineDTO struct {
	MaterialID     string          `json:"material_id"`
	OnHand         decimal.Decimal `json:"on_hand"`
	Reserved       decimal.Decimal `json:"reserved"`
	Available      decimal.Decimal `json:"available"`
	LastMovementAt *time.Time      `json:"last_movement_at,omitempty"`
}

// TechnicianStockResponse inventario completo del técnico.
type TechnicianStockResponse struct {
	TechnicianID string         `json:"technician_id"`
	Version      int64          `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Materials    []StockLineDTO `json:"materials"`
}

// MovementDTO entrada del ledger.
type MovementDTO struct {
	ID                string          `json:"id"`
	TechnicianID      string          `json:"technician_id"`
	MaterialID        string          `json:"material_id"`
	Kind              string          `json:"kind"`
	Quantity          decimal.Decimal `json:"quantity"`
	Direction         string          `json:"direction,omitempty"`
	Reason            string          `json:"reason"`
	VisibleToAnalysts bool            `json:"visible_to_analysts"`
	ActorID           string          `json:"actor_id"`
	Origin            string          `json:"origin"`
	OriginReferenceID string          `json:"origin_reference_id,omitempty"`
	OccurredAt        time.Time       `json:"occurred_at"`
}

// MovementListResponse respuesta de GET .../movements.
// NextBefore es el valor de "before" para pedir la página siguiente; vacío si no hay más.
type MovementListResponse struct {
	Total      int           `json:"total"`
	Movements  []MovementDTO `json:"movements"`
	NextBefore string        `json:"next_before,omitempty"`
}

// StockSummaryDTO totales del inventario.
type StockSummaryDTO struct {
	TechnicianID      string          `json:"technician_id"`
	Lines             int             `json:"lines"`
	OnHand            decimal.Decimal `json:"on_hand"`
	Reserved          decimal.Decimal `json:"reserved"`
	Available         decimal.Decimal `json:"available"`
	LowStockLines     int             `json:"low_stock_lines"`
	LowStockThreshold decimal.Decimal `json:"low_stock_threshold"`
}

// StockConflictResponse 409 con las cifras reales.
type StockConflictResponse struct {
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	MaterialID string          `json:"material_id"`
	Current    decimal.Decimal `json:"current"`
	Requested  decimal.Decimal `json:"requested"`
}

// NewTechnicianStockResponse mapea el agregado.
func NewTechnicianStockResponse(s *entity.TechnicianStock) TechnicianStockResponse {
	lines := s.Materials()
	out := TechnicianStockResponse{
		TechnicianID: s.TechnicianID,
		Version:      s.Version,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Materials:    make([]StockLineDTO, 0, len(lines)),
	}
	for _, l := range lines {
		line := StockLineDTO{
			MaterialID: l.MaterialID,
			OnHand:     l.OnHand,
			Reserved:   l.Reserved,
			Available:  l.Available,
		}
		if !l.LastMovementAt.IsZero() {
			t := l.LastMovementAt
			line.LastMovementAt = &t
		}
		out.Materials = append(out.Materials, line)
	}
	return out
}

// NewMovementDTO mapea un movimiento.
func NewMovementDTO(m *entity.MaterialMovement) MovementDTO {
	return MovementDTO{
		ID:                m.ID,
		TechnicianID:      m.TechnicianID,
		MaterialID:        m.MaterialID,
		Kind:              string(m.Kind),
		Quantity:          m.Quantity,
		Direction:         m.Direction,
		Reason:            m.Reason,
		VisibleToAnalysts: m.VisibleToAnalysts,
		ActorID:           m.ActorID,
		Origin:            m.Origin,
		OriginReferenceID: m.OriginReferenceID,
		OccurredAt:        m.OccurredAt,
	}
}

// NewStockSummaryDTO mapea el resumen.
func NewStockSummaryDTO(s entity.StockSummary, threshold decimal.Decimal) StockSummaryDTO {
	return StockSummaryDTO{
		TechnicianID:      s.TechnicianID,
		Lines:             s.Lines,
		OnHand:            s.OnHand,
		Reserved:          s.Reserved,
		Available:         s.Available,
		LowStockLines:     s.LowStockLines,
		LowStockThreshold: threshold,
	}
}

package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain"
)

// MaterialStock línea de inventario de un material en poder de un técnico.
// Invariantes: OnHand = Reserved + Available y las tres cantidades >= 0.
type MaterialStock struct {
	MaterialID     string
	OnHand         decimal.Decimal // actual
	Reserved       decimal.Decimal // apartada
	Available      decimal.Decimal // disponible
	LastMovementAt time.Time
}

// TechnicianStock es el registro de stock de un técnico (agregado raíz).
// Las líneas viven en un mapa por material y solo se modifican mediante los métodos
// del agregado; el slice order conserva el orden de creación.
type TechnicianStock struct {
	TechnicianID string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	// Version se incrementa en cada escritura persistida (control optimista).
	Version int64

	materials map[string]*MaterialStock
	order     []string
}

// NewTechnicianStock crea un registro vacío.
func NewTechnicianStock(technicianID string, now time.Time) *TechnicianStock {
	return &TechnicianStock{
		TechnicianID: technicianID,
		CreatedAt:    now,
		UpdatedAt:    now,
		materials:    make(map[string]*MaterialStock),
	}
}

// RestoreTechnicianStock reconstruye el agregado desde persistencia validando las invariantes.
func RestoreTechnicianStock(technicianID string, lines []MaterialStock, createdAt, updatedAt time.Time, version int64) (*TechnicianStock, error) {
	s := &TechnicianStock{
		TechnicianID: technicianID,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		Version:      version,
		materials:    make(map[string]*MaterialStock, len(lines)),
		order:        make([]string, 0, len(lines)),
	}
	for _, l := range lines {
		if _, dup := s.materials[l.MaterialID]; dup {
			return nil, fmt.Errorf("material %s duplicado en inventario de %s", l.MaterialID, technicianID)
		}
		if err := l.check(); err != nil {
			return nil, fmt.Errorf("inventario de %s: %w", technicianID, err)
		}
		line := l
		s.materials[l.MaterialID] = &line
		s.order = append(s.order, l.MaterialID)
	}
	return s, nil
}

func (m MaterialStock) check() error {
	if m.OnHand.IsNegative() || m.Reserved.IsNegative() || m.Available.IsNegative() {
		return fmt.Errorf("material %s con cantidades negativas", m.MaterialID)
	}
	if !m.OnHand.Equal(m.Reserved.Add(m.Available)) {
		return fmt.Errorf("material %s: actual %s != apartada %s + disponible %s",
			m.MaterialID, m.OnHand, m.Reserved, m.Available)
	}
	return nil
}

// Material devuelve una copia de la línea del material, si existe.
func (s *TechnicianStock) Material(materialID string) (MaterialStock, bool) {
	m, ok := s.materials[materialID]
	if !ok {
		return MaterialStock{}, false
	}
	return *m, true
}

// Materials devuelve copias de todas las líneas en orden de creación.
func (s *TechnicianStock) Materials() []MaterialStock {
	out := make([]MaterialStock, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.materials[id])
	}
	return out
}

// Len número de líneas de material.
func (s *TechnicianStock) Len() int { return len(s.order) }

// Clone copia profunda del agregado.
func (s *TechnicianStock) Clone() *TechnicianStock {
	c, _ := RestoreTechnicianStock(s.TechnicianID, s.Materials(), s.CreatedAt, s.UpdatedAt, s.Version)
	return c
}

func (s *TechnicianStock) touch(m *MaterialStock, now time.Time) {
	m.LastMovementAt = now
	s.UpdatedAt = now
}

// Reserve aparta qty de lo disponible.
func (s *TechnicianStock) Reserve(materialID string, qty decimal.Decimal, now time.Time) error {
	m, ok := s.materials[materialID]
	if !ok {
		return domain.ErrMaterialNotFound
	}
	if m.Available.LessThan(qty) {
		return &domain.StockConflictError{
			Kind: domain.ErrInsufficientStock, MaterialID: materialID,
			Current: m.Available, Requested: qty,
		}
	}
	m.Reserved = m.Reserved.Add(qty)
	m.Available = m.Available.Sub(qty)
	s.touch(m, now)
	return nil
}

// ConsumeResult resultado de aplicar un consumo sobre el snapshot.
type ConsumeResult struct {
	// Applied es false si el técnico no tiene línea para el material.
	Applied bool
	// Unreserved parte del consumo que excedió lo apartado.
	Unreserved decimal.Decimal
	// Shortfall parte del consumo que excedió lo que el técnico tenía (actual quedó en cero).
	Shortfall decimal.Decimal
}

// Consume descuenta material usado. Lo apartado baja hasta cero como mínimo y lo
// disponible se recalcula como actual - apartada.
func (s *TechnicianStock) Consume(materialID string, qty decimal.Decimal, now time.Time) ConsumeResult {
	m, ok := s.materials[materialID]
	if !ok {
		return ConsumeResult{}
	}
	res := ConsumeResult{Applied: true}

	onHand := m.OnHand.Sub(qty)
	if onHand.IsNegative() {
		res.Shortfall = onHand.Neg()
		onHand = decimal.Zero
	}
	fromReserved := decimal.Min(qty, m.Reserved)
	res.Unreserved = qty.Sub(fromReserved)

	m.OnHand = onHand
	m.Reserved = m.Reserved.Sub(fromReserved)
	if m.Reserved.GreaterThan(m.OnHand) {
		m.Reserved = m.OnHand
	}
	m.Available = m.OnHand.Sub(m.Reserved)
	s.touch(m, now)
	return res
}

// Release devuelve a disponible material apartado.
func (s *TechnicianStock) Release(materialID string, qty decimal.Decimal, now time.Time) error {
	m, ok := s.materials[materialID]
	if !ok {
		return domain.ErrMaterialNotFound
	}
	if m.Reserved.LessThan(qty) {
		return &domain.StockConflictError{
			Kind: domain.ErrInsufficientReservedStock, MaterialID: materialID,
			Current: m.Reserved, Requested: qty,
		}
	}
	m.Reserved = m.Reserved.Sub(qty)
	m.Available = m.Available.Add(qty)
	s.touch(m, now)
	return nil
}

// Adjust corrige manualmente el stock. delta > 0 suma a actual y disponible (crea la
// línea si no existe); delta < 0 resta solo de disponible.
func (s *TechnicianStock) Adjust(materialID string, delta decimal.Decimal, now time.Time) error {
	m, ok := s.materials[materialID]
	if delta.IsPositive() {
		if !ok {
			m = &MaterialStock{MaterialID: materialID}
			s.materials[materialID] = m
			s.order = append(s.order, materialID)
		}
		m.OnHand = m.OnHand.Add(delta)
		m.Available = m.Available.Add(delta)
		s.touch(m, now)
		return nil
	}
	if !ok {
		return domain.ErrMaterialNotFound
	}
	out := delta.Neg()
	if m.Available.LessThan(out) {
		return &domain.StockConflictError{
			Kind: domain.ErrInsufficientStock, MaterialID: materialID,
			Current: m.Available, Requested: out,
		}
	}
	m.OnHand = m.OnHand.Sub(out)
	m.Available = m.Available.Sub(out)
	s.touch(m, now)
	return nil
}

// Summarize agrega las líneas actuales. threshold es el umbral de stock bajo (disponible < threshold).
func (s *TechnicianStock) Summarize(threshold decimal.Decimal) StockSummary {
	sum := StockSummary{TechnicianID: s.TechnicianID}
	for _, id := range s.order {
		m := s.materials[id]
		sum.Lines++
		sum.OnHand = sum.OnHand.Add(m.OnHand)
		sum.Reserved = sum.Reserved.Add(m.Reserved)
		sum.Available = sum.Available.Add(m.Available)
		if m.Available.LessThan(threshold) {
			sum.LowStockLines++
		}
	}
	return sum
}

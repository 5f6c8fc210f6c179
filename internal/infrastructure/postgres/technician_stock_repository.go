package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/entity"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/repository"
)

var _ repository.TechnicianStockRepository = (*TechnicianStockRepo)(nil)

// TechnicianStockRepo implementación de TechnicianStockRepository sobre PostgreSQL.
// Las líneas de material se guardan como arreglo JSONB en el orden del agregado.
type TechnicianStockRepo struct {
	q Querier
}

// NewTechnicianStockRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTechnicianStockRepository(q Querier) *TechnicianStockRepo {
	return &TechnicianStockRepo{q: q}
}

// materialDoc forma persistida de entity.MaterialStock.
type materialDoc struct {
	MaterialID     string          `json:"material_id"`
	OnHand         decimal.Decimal `json:"on_hand"`
	Reserved       decimal.Decimal `json:"reserved"`
	Available      decimal.Decimal `json:"available"`
	LastMovementAt time.Time       `json:"last_movement_at"`
}

const selectStock = `
	SELECT technician_id, materials, version, created_at, updated_at
	FROM technician_stock WHERE technician_id = $1`

// Get obtiene el registro del técnico; (nil, nil) si no existe.
func (r *TechnicianStockRepo) Get(ctx context.Context, technicianID string) (*entity.TechnicianStock, error) {
	return r.get(ctx, selectStock, technicianID, "get technician stock")
}

// GetForUpdate obtiene el registro y bloquea la fila (SELECT FOR UPDATE) hasta el fin de la tx.
func (r *TechnicianStockRepo) GetForUpdate(ctx context.Context, technicianID string) (*entity.TechnicianStock, error) {
	return r.get(ctx, selectStock+" FOR UPDATE", technicianID, "get technician stock for update")
}

func (r *TechnicianStockRepo) get(ctx context.Context, query, technicianID, op string) (*entity.TechnicianStock, error) {
	var (
		id                   string
		raw                  []byte
		version              int64
		createdAt, updatedAt time.Time
	)
	err := r.q.QueryRow(ctx, query, technicianID).Scan(&id, &raw, &version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr(op, err)
	}
	var docs []materialDoc
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, fmt.Errorf("%s: decode materials: %w", op, err)
		}
	}
	lines := make([]entity.MaterialStock, 0, len(docs))
	for _, d := range docs {
		lines = append(lines, entity.MaterialStock{
			MaterialID:     d.MaterialID,
			OnHand:         d.OnHand,
			Reserved:       d.Reserved,
			Available:      d.Available,
			LastMovementAt: d.LastMovementAt,
		})
	}
	return entity.RestoreTechnicianStock(id, lines, createdAt, updatedAt, version)
}

// Create inserta el registro; ON CONFLICT DO NOTHING lo hace idempotente ante creaciones concurrentes.
func (r *TechnicianStockRepo) Create(ctx context.Context, stock *entity.TechnicianStock) error {
	raw, err := encodeMaterials(stock)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO technician_stock (technician_id, materials, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (technician_id) DO NOTHING`
	_, err = r.q.Exec(ctx, query, stock.TechnicianID, raw, stock.Version, stock.CreatedAt, stock.UpdatedAt)
	if err != nil {
		return wrapErr("create technician stock", err)
	}
	return nil
}

// Save actualiza el registro solo si la versión no cambió desde la lectura.
func (r *TechnicianStockRepo) Save(ctx context.Context, stock *entity.TechnicianStock) error {
	raw, err := encodeMaterials(stock)
	if err != nil {
		return err
	}
	query := `
		UPDATE technician_stock
		SET materials = $2, version = version + 1, updated_at = $3
		WHERE technician_id = $1 AND version = $4`
	tag, err := r.q.Exec(ctx, query, stock.TechnicianID, raw, stock.UpdatedAt, stock.Version)
	if err != nil {
		return wrapErr("save technician stock", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save technician stock %s: %w", stock.TechnicianID, domain.ErrWriteConflict)
	}
	stock.Version++
	return nil
}

func encodeMaterials(stock *entity.TechnicianStock) ([]byte, error) {
	lines := stock.Materials()
	docs := make([]materialDoc, 0, len(lines))
	for _, l := range lines {
		docs = append(docs, materialDoc{
			MaterialID:     l.MaterialID,
			OnHand:         l.OnHand,
			Reserved:       l.Reserved,
			Available:      l.Available,
			LastMovementAt: l.LastMovementAt,
		})
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encode materials: %w", err)
	}
	return raw, nil
}

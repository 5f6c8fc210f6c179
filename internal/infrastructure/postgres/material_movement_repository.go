package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/entity"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/repository"
)

var _ repository.MaterialMovementRepository = (*MaterialMovementRepo)(nil)

// MaterialMovementRepo ledger de movimientos sobre PostgreSQL (usable con pool o tx).
// La tabla rechaza UPDATE y DELETE mediante trigger (ver schema.sql).
type MaterialMovementRepo struct {
	q Querier
}

// NewMaterialMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewMaterialMovementRepository(q Querier) *MaterialMovementRepo {
	return &MaterialMovementRepo{q: q}
}

// Append persiste un movimiento.
func (r *MaterialMovementRepo) Append(ctx context.Context, m *entity.MaterialMovement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	query := `
		INSERT INTO material_movements
			(id, technician_id, material_id, kind, quantity, direction, reason,
			 visible_to_analysts, actor_id, origin, origin_reference_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.q.Exec(ctx, query,
		m.ID, m.TechnicianID, m.MaterialID, string(m.Kind), m.Quantity, nullable(m.Direction), m.Reason,
		m.VisibleToAnalysts, m.ActorID, m.Origin, m.OriginReferenceID, m.OccurredAt,
	)
	if err != nil {
		return wrapErr("append material movement", err)
	}
	return nil
}

// List lista movimientos del técnico del más reciente al más antiguo.
func (r *MaterialMovementRepo) List(ctx context.Context, technicianID string, f repository.MovementFilter) ([]*entity.MaterialMovement, error) {
	query := `
		SELECT id, technician_id, material_id, kind, quantity, COALESCE(direction, ''), reason,
		       visible_to_analysts, actor_id, origin, origin_reference_id, occurred_at
		FROM material_movements WHERE technician_id = $1`
	args := []any{technicianID}
	pos := 2
	if f.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", pos)
		args = append(args, string(f.Kind))
		pos++
	}
	if f.MaterialID != "" {
		query += fmt.Sprintf(" AND material_id = $%d", pos)
		args = append(args, f.MaterialID)
		pos++
	}
	if f.VisibleToAnalysts != nil {
		query += fmt.Sprintf(" AND visible_to_analysts = $%d", pos)
		args = append(args, *f.VisibleToAnalysts)
		pos++
	}
	if f.From != nil {
		query += fmt.Sprintf(" AND occurred_at >= $%d", pos)
		args = append(args, *f.From)
		pos++
	}
	if f.To != nil {
		query += fmt.Sprintf(" AND occurred_at <= $%d", pos)
		args = append(args, *f.To)
		pos++
	}
	if f.BeforeID != "" {
		var (
			at  time.Time
			seq int64
		)
		err := r.q.QueryRow(ctx,
			`SELECT occurred_at, seq FROM material_movements WHERE id = $1 AND technician_id = $2`,
			f.BeforeID, technicianID,
		).Scan(&at, &seq)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewValidationError("before", "movimiento desconocido")
		}
		if err != nil {
			return nil, wrapErr("load movement cursor", err)
		}
		query += fmt.Sprintf(" AND (occurred_at, seq) < ($%d, $%d)", pos, pos+1)
		args = append(args, at, seq)
		pos += 2
	}
	query += " ORDER BY occurred_at DESC, seq DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", pos)
		args = append(args, f.Limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list material movements", err)
	}
	defer rows.Close()
	var list []*entity.MaterialMovement
	for rows.Next() {
		var (
			m    entity.MaterialMovement
			kind string
		)
		if err := rows.Scan(&m.ID, &m.TechnicianID, &m.MaterialID, &kind, &m.Quantity, &m.Direction, &m.Reason,
			&m.VisibleToAnalysts, &m.ActorID, &m.Origin, &m.OriginReferenceID, &m.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan material movement: %w", err)
		}
		m.Kind = entity.MovementKind(kind)
		list = append(list, &m)
	}
	return list, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/entity"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/repository"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/pkg/logger"
)

// Valores por defecto de Config.
const (
	DefaultMaxRetries   = 3
	DefaultHistoryLimit = 100
)

// DefaultLowStockThreshold umbral de stock bajo usado por Summarize.
var DefaultLowStockThreshold = decimal.NewFromInt(5)

const (
	opGetOrCreate = "get_or_create"
	opReserve     = "reserve"
	opConsume     = "consume"
	opReturn      = "return"
	opAdjust      = "adjust"
	opList        = "list_movements"
	opSummarize   = "summarize"
	opReport      = "stock_report"
)

// Config parámetros del ledger.
type Config struct {
	// MaxRetries reintentos ante domain.ErrWriteConflict cuando el servicio abre la transacción.
	MaxRetries int
	// LowStockThreshold nil usa DefaultLowStockThreshold; cero deshabilita el conteo.
	LowStockThreshold *decimal.Decimal
	// HistoryLimit tope de filas devueltas por ListMovements.
	HistoryLimit int
	// RetryInitialInterval espera inicial del backoff exponencial.
	RetryInitialInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.LowStockThreshold == nil {
		t := DefaultLowStockThreshold
		c.LowStockThreshold = &t
	}
	if c.HistoryLimit <= 0 || c.HistoryLimit > DefaultHistoryLimit {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 10 * time.Millisecond
	}
	return c
}

// ServiceDeps dependencias del servicio.
type ServiceDeps struct {
	TxRunner TxRunner
	// Reader repositorios fuera de transacción para consultas.
	Reader  UnitOfWork
	Reports StockReportGenerator
	Logger  *logger.Logger
	Metrics *Metrics
	Config  Config
	// Clock opcional; por defecto time.Now (UTC).
	Clock func() time.Time
}

// Service es el ledger de inventario de técnicos: único escritor de los registros de
// stock y del ledger de movimientos.
type Service struct {
	tx      TxRunner
	reader  UnitOfWork
	reports StockReportGenerator
	log     *logger.Logger
	metrics *Metrics
	tracer  trace.Tracer
	cfg     Config
	now     func() time.Time
}

// NewService construye el servicio.
func NewService(deps ServiceDeps) *Service {
	s := &Service{
		tx:      deps.TxRunner,
		reader:  deps.Reader,
		reports: deps.Reports,
		log:     deps.Logger,
		metrics: deps.Metrics,
		tracer:  otel.Tracer("github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/application/ledger"),
		cfg:     deps.Config.withDefaults(),
		now:     deps.Clock,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// LowStockThreshold umbral configurado.
func (s *Service) LowStockThreshold() decimal.Decimal { return *s.cfg.LowStockThreshold }

// start abre el span y devuelve la función que lo cierra y registra métricas.
func (s *Service) start(ctx context.Context, op, technicianID, materialID string) (context.Context, func(error)) {
	begin := time.Now()
	attrs := []attribute.KeyValue{attribute.String("technician.id", technicianID)}
	if materialID != "" {
		attrs = append(attrs, attribute.String("material.id", materialID))
	}
	ctx, span := s.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.observe(op, begin, err)
	}
}

// runInTx ejecuta fn en una transacción propia reintentando ante ErrWriteConflict.
func (s *Service) runInTx(ctx context.Context, op string, fn func(uow UnitOfWork) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.RetryInitialInterval
	eb.MaxInterval = 20 * s.cfg.RetryInitialInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := s.tx.Run(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, domain.ErrWriteConflict) {
			if attempt <= s.cfg.MaxRetries {
				s.metrics.retry(op)
				s.log.Warn().Str("op", op).Int("attempt", attempt).Err(err).Msg("conflicto de escritura, reintentando")
			}
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(uint(s.cfg.MaxRetries+1)))

	if err != nil && errors.Is(err, domain.ErrWriteConflict) {
		s.log.Error().Str("op", op).Int("attempts", attempt).Err(err).Msg("reintentos agotados")
		return fmt.Errorf("%w: %w", domain.ErrTryAgain, err)
	}
	return err
}

// ── getOrCreate ──────────────────────────────────────────────────────────────

// GetOrCreate devuelve el registro del técnico o crea uno vacío. Idempotente.
func (s *Service) GetOrCreate(ctx context.Context, technicianID string) (*entity.TechnicianStock, error) {
	if technicianID == "" {
		return nil, domain.NewValidationError("technician_id", "es obligatorio")
	}
	ctx, end := s.start(ctx, opGetOrCreate, technicianID, "")
	var stock *entity.TechnicianStock
	err := s.runInTx(ctx, opGetOrCreate, func(uow UnitOfWork) error {
		var err error
		stock, err = s.getOrCreate(ctx, uow, technicianID)
		return err
	})
	end(err)
	return stock, err
}

// GetOrCreateInTx como GetOrCreate dentro de la transacción del caller.
func (s *Service) GetOrCreateInTx(ctx context.Context, uow UnitOfWork, technicianID string) (*entity.TechnicianStock, error) {
	if technicianID == "" {
		return nil, domain.NewValidationError("technician_id", "es obligatorio")
	}
	ctx, end := s.start(ctx, opGetOrCreate, technicianID, "")
	stock, err := s.getOrCreate(ctx, uow, technicianID)
	end(err)
	return stock, err
}

func (s *Service) getOrCreate(ctx context.Context, uow UnitOfWork, technicianID string) (*entity.TechnicianStock, error) {
	stock, err := uow.Stocks().Get(ctx, technicianID)
	if err != nil {
		return nil, err
	}
	if stock != nil {
		return stock, nil
	}
	if err := uow.Stocks().Create(ctx, entity.NewTechnicianStock(technicianID, s.now())); err != nil {
		return nil, err
	}
	stock, err = uow.Stocks().Get(ctx, technicianID)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		return nil, fmt.Errorf("inventario de %s no visible tras crearlo", technicianID)
	}
	s.log.Info().Str("technician_id", technicianID).Msg("inventario de técnico inicializado")
	return stock, nil
}

// ── reserve ──────────────────────────────────────────────────────────────────

// Reserve aparta material disponible del técnico para una orden.
// Errores: domain.ErrTechnicianStockNotFound, domain.ErrMaterialNotFound,
// *domain.StockConflictError (ErrInsufficientStock).
func (s *Service) Reserve(ctx context.Context, in ReserveInput) (*entity.MaterialMovement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ctx, end := s.start(ctx, opReserve, in.TechnicianID, in.MaterialID)
	var mov *entity.MaterialMovement
	err := s.runInTx(ctx, opReserve, func(uow UnitOfWork) error {
		var err error
		mov, err = s.reserve(ctx, uow, in)
		return err
	})
	end(err)
	s.logResult(opReserve, mov, err)
	return mov, err
}

// ReserveInTx como Reserve pero dentro de la transacción del caller; sin reintentos.
func (s *Service) ReserveInTx(ctx context.Context, uow UnitOfWork, in ReserveInput) (*entity.MaterialMovement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ctx, end := s.start(ctx, opReserve, in.TechnicianID, in.MaterialID)
	mov, err := s.reserve(ctx, uow, in)
	end(err)
	s.logResult(opReserve, mov, err)
	return mov, err
}

func (s *Service) reserve(ctx context.Context, uow UnitOfWork, in ReserveInput) (*entity.MaterialMovement, error) {
	stock, err := uow.Stocks().GetForUpdate(ctx, in.TechnicianID)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		return nil, domain.ErrTechnicianStockNotFound
	}
	now := s.now()
	if err := stock.Reserve(in.MaterialID, in.Quantity, now); err != nil {
		return nil, err
	}
	if err := uow.Stocks().Save(ctx, stock); err != nil {
		return nil, err
	}
	mov := &entity.MaterialMovement{
		ID:                uuid.New().String(),
		TechnicianID:      in.TechnicianID,
		MaterialID:        in.MaterialID,
		Kind:              entity.MovementKindReserve,
		Quantity:          in.Quantity,
		Reason:            in.Reason,
		VisibleToAnalysts: true,
		ActorID:           in.ActorID,
		Origin:            originOrDefault(in.Origin, entity.OriginWorkOrder),
		OriginReferenceID: in.OriginReferenceID,
		OccurredAt:        now,
	}
	if err := uow.Movements().Append(ctx, mov); err != nil {
		return nil, err
	}
	return mov, nil
}

// ── commitConsumption ────────────────────────────────────────────────────────

// CommitConsumption registra material consumido. Si el técnico no tiene registro o
// línea para el material, el snapshot no se toca pero el movimiento se registra igual.
func (s *Service) CommitConsumption(ctx context.Context, in ConsumeInput) (*entity.MaterialMovement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ctx, end := s.start(ctx, opConsume, in.TechnicianID, in.MaterialID)
	var mov *entity.MaterialMovement
	err := s.runInTx(ctx, opConsume, func(uow UnitOfWork) error {
		var err error
		mov, err = s.consume(ctx, uow, in)
		return err
	})
	end(err)
	s.logResult(opConsume, mov, err)
	return mov, err
}

// CommitConsumptionInTx como CommitConsumption dentro de la transacción del caller.
func (s *Service) CommitConsumptionInTx(ctx context.Context, uow UnitOfWork, in ConsumeInput) (*entity.MaterialMovement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ctx, end := s.start(ctx, opConsume, in.TechnicianID, in.MaterialID)
	mov, err := s.consume(ctx, uow, in)
	end(err)
	s.logResult(opConsume, mov, err)
	return mov, err
}

func (s *Service) consume(ctx context.Context, uow UnitOfWork, in ConsumeInput) (*entity.MaterialMovement, error) {
	now := s.now()
	stock, err := uow.Stocks().GetForUpdate(ctx, in.TechnicianID)
	if err != nil {
		return nil, err
	}
	if stock != nil {
		res := stock.Consume(in.MaterialID, in.Quantity, now)
		if res.Applied {
			if err := uow.Stocks().Save(ctx, stock); err != nil {
				return nil, err
			}
			if res.Shortfall.IsPositive() {
				s.log.Warn().
					Str("technician_id", in.TechnicianID).
					Str("material_id", in.MaterialID).
					Str("shortfall", res.Shortfall.String()).
					Msg("consumo mayor que el stock actual del técnico; actual queda en cero")
			}
		} else {
			s.log.Debug().Str("technician_id", in.TechnicianID).Str("material_id", in.MaterialID).
				Msg("material sin línea de inventario; solo se registra el movimiento")
		}
	} else {
		s.log.Debug().Str("technician_id", in.TechnicianID).
			Msg("técnico sin inventario registrado; solo se registra el movimiento")
	}

	mov := &entity.MaterialMovement{
		ID:                uuid.New().String(),
		TechnicianID:      in.TechnicianID,
		MaterialID:        in.MaterialID,
		Kind:              entity.MovementKindConsume,
		Quantity:          in.Quantity,
		Reason:            consumeReason(in.OrderReference),
		VisibleToAnalysts: true,
		ActorID:           in.ActorID,
		Origin:            originOrDefault(in.Origin, entity.OriginWorkOrder),
		OriginReferenceID: in.OriginReferenceID,
		OccurredAt:        now,
	}
	if err := uow.Movements().Append(ctx, mov); err != nil {
		return nil, err
	}
	return mov, nil
}

func consumeReason(orderReference string) string {
	if orderReference == "" {
		return "Consumo de material"
	}
	return "Consumo de material en orden " + orderReference
}

// ── returnMaterial ───────────────────────────────────────────────────────────

// ReturnMaterial libera a disponible material apartado que no se usó.
// Errores: NotFound, *domain.StockConflictError (ErrInsufficientReservedStock).
func (s *Service) ReturnMaterial(ctx context.Context, in ReturnInput) (*entity.MaterialMovement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ctx, end := s.start(ctx, opReturn, in.TechnicianID, in.MaterialID)
	var mov *entity.MaterialMovement
	err := s.runInTx(ctx, opReturn, func(uow UnitOfWork) error {
		var err error
		mov, err = s.returnMaterial(ctx, uow, in)
		return err
	})
	end(err)
	s.logResult(opReturn, mov, err)
	return mov, err
}

// ReturnMaterialInTx como ReturnMaterial dentro de la transacción del caller.
func (s *Service) ReturnMaterialInTx(ctx context.Context, uow UnitOfWork, in ReturnInput) (*entity.MaterialMovement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ctx, end := s.start(ctx, opReturn, in.TechnicianID, in.MaterialID)
	mov, err := s.returnMaterial(ctx, uow, in)
	end(err)
	s.logResult(opReturn, mov, err)
	return mov, err
}

func (s *Service) returnMaterial(ctx context.Context, uow UnitOfWork, in ReturnInput) (*entity.MaterialMovement, error) {
	stock, err := uow.Stocks().GetForUpdate(ctx, in.TechnicianID)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		return nil, domain.ErrTechnicianStockNotFound
	}
	now := s.now()
	if err := stock.Release(in.MaterialID, in.Quantity, now); err != nil {
		return nil, err
	}
	if err := uow.Stocks().Save(ctx, stock); err != nil {
		return nil, err
	}
	mov := &entity.MaterialMovement{
		ID:                uuid.New().String(),
		TechnicianID:      in.TechnicianID,
		MaterialID:        in.MaterialID,
		Kind:              entity.MovementKindReturn,
		Quantity:          in.Quantity,
		Reason:            in.Reason,
		VisibleToAnalysts: true,
		ActorID:           in.ActorID,
		Origin:            originOrDefault(in.Origin, entity.OriginWorkOrder),
		OriginReferenceID: in.OriginReferenceID,
		OccurredAt:        now,
	}
	if err := uow.Movements().Append(ctx, mov); err != nil {
		return nil, err
	}
	return mov, nil
}

// ── adjust ───────────────────────────────────────────────────────────────────

// Adjust aplica un ajuste manual de analista. Con delta positivo crea el registro y la
// línea si no existen; con delta negativo solo descuenta de lo disponible.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (*entity.MaterialMovement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ctx, end := s.start(ctx, opAdjust, in.TechnicianID, in.MaterialID)
	var mov *entity.MaterialMovement
	err := s.runInTx(ctx, opAdjust, func(uow UnitOfWork) error {
		var err error
		mov, err = s.adjust(ctx, uow, in)
		return err
	})
	end(err)
	s.logResult(opAdjust, mov, err)
	return mov, err
}

// AdjustInTx como Adjust dentro de la transacción del caller.
func (s *Service) AdjustInTx(ctx context.Context, uow UnitOfWork, in AdjustInput) (*entity.MaterialMovement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ctx, end := s.start(ctx, opAdjust, in.TechnicianID, in.MaterialID)
	mov, err := s.adjust(ctx, uow, in)
	end(err)
	s.logResult(opAdjust, mov, err)
	return mov, err
}

func (s *Service) adjust(ctx context.Context, uow UnitOfWork, in AdjustInput) (*entity.MaterialMovement, error) {
	stock, err := uow.Stocks().GetForUpdate(ctx, in.TechnicianID)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		if !in.Delta.IsPositive() {
			return nil, domain.ErrTechnicianStockNotFound
		}
		if err := uow.Stocks().Create(ctx, entity.NewTechnicianStock(in.TechnicianID, s.now())); err != nil {
			return nil, err
		}
		if stock, err = uow.Stocks().GetForUpdate(ctx, in.TechnicianID); err != nil {
			return nil, err
		}
		if stock == nil {
			return nil, fmt.Errorf("inventario de %s no visible tras crearlo", in.TechnicianID)
		}
	}
	now := s.now()
	if err := stock.Adjust(in.MaterialID, in.Delta, now); err != nil {
		return nil, err
	}
	if err := uow.Stocks().Save(ctx, stock); err != nil {
		return nil, err
	}
	direction := entity.DirectionIn
	if in.Delta.IsNegative() {
		direction = entity.DirectionOut
	}
	mov := &entity.MaterialMovement{
		ID:                uuid.New().String(),
		TechnicianID:      in.TechnicianID,
		MaterialID:        in.MaterialID,
		Kind:              entity.MovementKindAdjust,
		Quantity:          in.Delta.Abs(),
		Direction:         direction,
		Reason:            in.Reason,
		VisibleToAnalysts: !in.HiddenFromAnalysts,
		ActorID:           in.ActorID,
		Origin:            entity.OriginManual,
		OriginReferenceID: in.OriginReferenceID,
		OccurredAt:        now,
	}
	if err := uow.Movements().Append(ctx, mov); err != nil {
		return nil, err
	}
	return mov, nil
}

// ── consultas ────────────────────────────────────────────────────────────────

// ListMovements devuelve el historial más reciente primero, con un tope de HistoryLimit
// filas. Para ver más atrás se pasa en filter.BeforeID el ID del último movimiento
// recibido; To es un filtro de ventana inclusivo, no un cursor.
func (s *Service) ListMovements(ctx context.Context, technicianID string, filter repository.MovementFilter) ([]*entity.MaterialMovement, error) {
	if technicianID == "" {
		return nil, domain.NewValidationError("technician_id", "es obligatorio")
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, domain.NewValidationError("kind", "tipo de movimiento desconocido")
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, domain.NewValidationError("from", "debe ser anterior a to")
	}
	if filter.BeforeID != "" {
		if _, err := uuid.Parse(filter.BeforeID); err != nil {
			return nil, domain.NewValidationError("before", "debe ser el ID de un movimiento")
		}
	}
	filter.Limit = s.PageSize(filter.Limit)
	ctx, end := s.start(ctx, opList, technicianID, filter.MaterialID)
	list, err := s.reader.Movements().List(ctx, technicianID, filter)
	end(err)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*entity.MaterialMovement{}
	}
	return list, nil
}

// PageSize tamaño de página efectivo para un límite pedido.
func (s *Service) PageSize(limit int) int {
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		return s.cfg.HistoryLimit
	}
	return limit
}

// Summarize totales del inventario actual. Sin registro devuelve un resumen en cero y
// no crea nada.
func (s *Service) Summarize(ctx context.Context, technicianID string) (entity.StockSummary, error) {
	if technicianID == "" {
		return entity.StockSummary{}, domain.NewValidationError("technician_id", "es obligatorio")
	}
	ctx, end := s.start(ctx, opSummarize, technicianID, "")
	stock, err := s.reader.Stocks().Get(ctx, technicianID)
	end(err)
	if err != nil {
		return entity.StockSummary{}, err
	}
	if stock == nil {
		return entity.StockSummary{
			TechnicianID: technicianID,
			OnHand:       decimal.Zero,
			Reserved:     decimal.Zero,
			Available:    decimal.Zero,
		}, nil
	}
	return stock.Summarize(s.LowStockThreshold()), nil
}

// StockReport genera el reporte imprimible (líneas actuales y últimos movimientos).
func (s *Service) StockReport(ctx context.Context, technicianID string) ([]byte, error) {
	if s.reports == nil {
		return nil, errors.New("generador de reportes no configurado")
	}
	if technicianID == "" {
		return nil, domain.NewValidationError("technician_id", "es obligatorio")
	}
	ctx, end := s.start(ctx, opReport, technicianID, "")
	doc, err := s.stockReport(ctx, technicianID)
	end(err)
	return doc, err
}

func (s *Service) stockReport(ctx context.Context, technicianID string) ([]byte, error) {
	stock, err := s.reader.Stocks().Get(ctx, technicianID)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		return nil, domain.ErrTechnicianStockNotFound
	}
	movs, err := s.reader.Movements().List(ctx, technicianID, repository.MovementFilter{Limit: s.cfg.HistoryLimit})
	if err != nil {
		return nil, err
	}
	return s.reports.GenerateStockReport(ctx, stock, stock.Summarize(s.LowStockThreshold()), movs)
}

func (s *Service) logResult(op string, mov *entity.MaterialMovement, err error) {
	switch {
	case err == nil:
		s.log.Info().
			Str("op", op).
			Str("movement_id", mov.ID).
			Str("technician_id", mov.TechnicianID).
			Str("material_id", mov.MaterialID).
			Str("quantity", mov.Quantity.String()).
			Str("actor_id", mov.ActorID).
			Str("origin_ref", mov.OriginReferenceID).
			Msg("movimiento de inventario registrado")
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidInput):
		s.log.Warn().Str("op", op).Err(err).Msg("movimiento de inventario rechazado")
	default:
		s.log.Error().Str("op", op).Err(err).Msg("movimiento de inventario fallido")
	}
}

package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/application/dto"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/application/ledger"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/entity"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/repository"
)

const paramTechnicianID = "technicianId"

// LedgerHandler expone el ledger de inventario de técnicos (protegido).
type LedgerHandler struct {
	svc *ledger.Service
}

// NewLedgerHandler construye el handler.
func NewLedgerHandler(svc *ledger.Service) *LedgerHandler {
	return &LedgerHandler{svc: svc}
}

// GetInventory godoc
// @Summary      Inventario del técnico (lo crea vacío si no existe)
// @Tags         technicians
// @Security     Bearer
// @Produce      json
// @Param        technicianId  path  string  true  "ID del técnico"
// @Success      200  {object}  dto.TechnicianStockResponse
// @Failure      401  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Router       /api/technicians/{technicianId}/inventory [get]
func (h *LedgerHandler) GetInventory(c *fiber.Ctx) error {
	stock, err := h.svc.GetOrCreate(c.UserContext(), c.Params(paramTechnicianID))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewTechnicianStockResponse(stock))
}

// Reserve godoc
// @Summary      Apartar material para una orden
// @Tags         technicians
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        technicianId  path  string               true  "ID del técnico"
// @Param        body          body  dto.MovementRequest  true  "material_id, quantity, origin_reference_id"
// @Success      201  {object}  dto.MovementDTO
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.StockConflictResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/technicians/{technicianId}/inventory/reservations [post]
func (h *LedgerHandler) Reserve(c *fiber.Ctx) error {
	var in dto.MovementRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	mov, err := h.svc.Reserve(c.UserContext(), ledger.ReserveInput{
		TechnicianID:      c.Params(paramTechnicianID),
		MaterialID:        in.MaterialID,
		Quantity:          in.Quantity,
		Reason:            in.Reason,
		Origin:            in.Origin,
		OriginReferenceID: in.OriginReferenceID,
		ActorID:           GetUserID(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewMovementDTO(mov))
}

// Consume godoc
// @Summary      Registrar consumo de material
// @Description  Siempre queda registrado en el ledger, aunque el técnico no tenga línea del material.
// @Tags         technicians
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        technicianId  path  string               true  "ID del técnico"
// @Param        body          body  dto.MovementRequest  true  "material_id, quantity, order_reference"
// @Success      201  {object}  dto.MovementDTO
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/technicians/{technicianId}/inventory/consumptions [post]
func (h *LedgerHandler) Consume(c *fiber.Ctx) error {
	var in dto.MovementRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	mov, err := h.svc.CommitConsumption(c.UserContext(), ledger.ConsumeInput{
		TechnicianID:      c.Params(paramTechnicianID),
		MaterialID:        in.MaterialID,
		Quantity:          in.Quantity,
		Origin:            in.Origin,
		OriginReferenceID: in.OriginReferenceID,
		OrderReference:    in.OrderReference,
		ActorID:           GetUserID(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewMovementDTO(mov))
}

// Return godoc
// @Summary      Devolver material apartado
// @Tags         technicians
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        technicianId  path  string               true  "ID del técnico"
// @Param        body          body  dto.MovementRequest  true  "material_id, quantity"
// @Success      201  {object}  dto.MovementDTO
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.StockConflictResponse
// @Router       /api/technicians/{technicianId}/inventory/returns [post]
func (h *LedgerHandler) Return(c *fiber.Ctx) error {
	var in dto.MovementRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	mov, err := h.svc.ReturnMaterial(c.UserContext(), ledger.ReturnInput{
		TechnicianID:      c.Params(paramTechnicianID),
		MaterialID:        in.MaterialID,
		Quantity:          in.Quantity,
		Reason:            in.Reason,
		Origin:            in.Origin,
		OriginReferenceID: in.OriginReferenceID,
		ActorID:           GetUserID(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewMovementDTO(mov))
}

// Adjust godoc
// @Summary      Ajuste manual de inventario (analistas)
// @Tags         technicians
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        technicianId  path  string                 true  "ID del técnico"
// @Param        body          body  dto.AdjustmentRequest  true  "material_id, delta con signo, reason"
// @Success      201  {object}  dto.MovementDTO
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.StockConflictResponse
// @Router       /api/technicians/{technicianId}/inventory/adjustments [post]
func (h *LedgerHandler) Adjust(c *fiber.Ctx) error {
	var in dto.AdjustmentRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	mov, err := h.svc.Adjust(c.UserContext(), ledger.AdjustInput{
		TechnicianID:       c.Params(paramTechnicianID),
		MaterialID:         in.MaterialID,
		Delta:              in.Delta,
		Reason:             in.Reason,
		OriginReferenceID:  in.OriginReferenceID,
		ActorID:            GetUserID(c),
		HiddenFromAnalysts: in.HiddenFromAnalysts,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewMovementDTO(mov))
}

// ListMovements godoc
// @Summary      Historial de movimientos (más reciente primero)
// @Description  Para ver más atrás se pasa en "before" el next_before de la respuesta anterior.
// @Tags         technicians
// @Security     Bearer
// @Produce      json
// @Param        technicianId  path   string  true   "ID del técnico"
// @Param        kind          query  string  false  "reserve | consume | return | adjust"
// @Param        material_id   query  string  false  "Filtrar por material"
// @Param        visible       query  bool    false  "Solo visibles (true) u ocultos (false) para analistas"
// @Param        from          query  string  false  "RFC3339"
// @Param        to            query  string  false  "RFC3339"
// @Param        before        query  string  false  "ID del último movimiento recibido (cursor)"
// @Param        limit         query  int     false  "Máximo 100"
// @Success      200  {object}  dto.MovementListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/technicians/{technicianId}/inventory/movements [get]
func (h *LedgerHandler) ListMovements(c *fiber.Ctx) error {
	filter, err := parseMovementFilter(c)
	if err != nil {
		return writeError(c, err)
	}
	list, err := h.svc.ListMovements(c.UserContext(), c.Params(paramTechnicianID), filter)
	if err != nil {
		return writeError(c, err)
	}
	out := dto.MovementListResponse{Total: len(list), Movements: make([]dto.MovementDTO, 0, len(list))}
	for _, m := range list {
		out.Movements = append(out.Movements, dto.NewMovementDTO(m))
	}
	if len(list) > 0 && len(list) == h.svc.PageSize(filter.Limit) {
		out.NextBefore = list[len(list)-1].ID
	}
	return c.JSON(out)
}

// Summary godoc
// @Summary      Totales del inventario del técnico
// @Tags         technicians
// @Security     Bearer
// @Produce      json
// @Param        technicianId  path  string  true  "ID del técnico"
// @Success      200  {object}  dto.StockSummaryDTO
// @Router       /api/technicians/{technicianId}/inventory/summary [get]
func (h *LedgerHandler) Summary(c *fiber.Ctx) error {
	sum, err := h.svc.Summarize(c.UserContext(), c.Params(paramTechnicianID))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewStockSummaryDTO(sum, h.svc.LowStockThreshold()))
}

// Report godoc
// @Summary      Reporte PDF del inventario del técnico
// @Tags         technicians
// @Security     Bearer
// @Produce      application/pdf
// @Param        technicianId  path  string  true  "ID del técnico"
// @Success      200  {file}    binary
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/technicians/{technicianId}/inventory/report.pdf [get]
func (h *LedgerHandler) Report(c *fiber.Ctx) error {
	technicianID := c.Params(paramTechnicianID)
	doc, err := h.svc.StockReport(c.UserContext(), technicianID)
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="inventario-`+technicianID+`.pdf"`)
	return c.Send(doc)
}

func parseMovementFilter(c *fiber.Ctx) (repository.MovementFilter, error) {
	f := repository.MovementFilter{
		Kind:       entity.MovementKind(c.Query("kind")),
		MaterialID: c.Query("material_id"),
		BeforeID:   c.Query("before"),
	}
	if v := c.Query("visible"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, domain.NewValidationError("visible", "debe ser true o false")
		}
		f.VisibleToAnalysts = &b
	}
	for _, q := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := c.Query(q.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, domain.NewValidationError(q.name, "debe ser una fecha RFC3339")
		}
		*q.dst = &t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, domain.NewValidationError("limit", "debe ser un entero positivo")
		}
		f.Limit = n
	}
	return f, nil
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
}

// writeError traduce errores del ledger a respuestas HTTP.
func writeError(c *fiber.Ctx, err error) error {
	var verr *domain.ValidationError
	var conflict *domain.StockConflictError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: verr.Error(), Field: verr.Field})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrMaterialNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "MATERIAL_NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.As(err, &conflict):
		code := "INSUFFICIENT_STOCK"
		if errors.Is(err, domain.ErrInsufficientReservedStock) {
			code = "INSUFFICIENT_RESERVED_STOCK"
		}
		return c.Status(fiber.StatusConflict).JSON(dto.StockConflictResponse{
			Code: code, Message: conflict.Error(), MaterialID: conflict.MaterialID,
			Current: conflict.Current, Requested: conflict.Requested,
		})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrTryAgain):
		c.Set(fiber.HeaderRetryAfter, "1")
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "TRY_AGAIN", Message: "inventario ocupado, intente de nuevo"})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado al recurso"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: "error interno"})
	}
}

package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/application/ledger"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Ledger    *ledger.Service
	JWTSecret string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Inventario por técnico: el técnico solo ve el suyo
	techs := protected.Group("/technicians/:"+paramTechnicianID, RequireOwnInventory(paramTechnicianID))
	h := NewLedgerHandler(deps.Ledger)

	staff := RequireRole(jwt.RoleAdmin, jwt.RoleAnalyst, jwt.RoleDispatcher)
	techs.Get("/inventory", h.GetInventory)
	techs.Get("/inventory/movements", h.ListMovements)
	techs.Get("/inventory/summary", h.Summary)
	techs.Get("/inventory/report.pdf", h.Report)
	techs.Post("/inventory/reservations", staff, h.Reserve)
	techs.Post("/inventory/consumptions", RequireRole(jwt.RoleAdmin, jwt.RoleAnalyst, jwt.RoleDispatcher, jwt.RoleTechnician), h.Consume)
	techs.Post("/inventory/returns", staff, h.Return)
	techs.Post("/inventory/adjustments", RequireRole(jwt.RoleAdmin, jwt.RoleAnalyst), h.Adjust)
}

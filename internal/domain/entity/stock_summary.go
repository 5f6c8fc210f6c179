package entity

import "github.com/shopspring/decimal"

// StockSummary totales del inventario actual de un técnico.
type StockSummary struct {
	TechnicianID  string
	Lines         int
	OnHand        decimal.Decimal
	Reserved      decimal.Decimal
	Available     decimal.Decimal
	LowStockLines int // líneas con disponible bajo el umbral
}

// Package pdf genera el reporte imprimible del inventario de un técnico.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Técnico                │  Fecha de corte            │
//	│  RESUMEN: líneas / actual / apartada / disponible / bajos   │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Material | Actual | Apartada | Disponible | Últ. mov │
//	│  ─────────────────────────────────────────────────────────  │
//	│  MOVIMIENTOS: Fecha | Tipo | Material | Cant. | Origen      │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"time"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/application/ledger"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/entity"
)

var _ ledger.StockReportGenerator = (*MarotoStockReport)(nil)

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorAlert   = &props.Color{Red: 180, Green: 30, Blue: 30}
)

var kindLabels = map[entity.MovementKind]string{
	entity.MovementKindReserve: "Apartado",
	entity.MovementKindConsume: "Consumo",
	entity.MovementKindReturn:  "Devolución",
	entity.MovementKindAdjust:  "Ajuste",
}

// MarotoStockReport implementa ledger.StockReportGenerator usando Maroto v2.
type MarotoStockReport struct {
	printer           *message.Printer
	lowStockThreshold decimal.Decimal
	now               func() time.Time
}

// NewMarotoStockReport construye el generador. Las cantidades bajo lowStockThreshold se
// resaltan en la tabla de materiales.
func NewMarotoStockReport(lowStockThreshold decimal.Decimal) *MarotoStockReport {
	return &MarotoStockReport{
		printer:           message.NewPrinter(language.Spanish),
		lowStockThreshold: lowStockThreshold,
		now:               time.Now,
	}
}

// GenerateStockReport genera el PDF y devuelve sus bytes.
func (g *MarotoStockReport) GenerateStockReport(
	_ context.Context,
	stock *entity.TechnicianStock,
	summary entity.StockSummary,
	movements []*entity.MaterialMovement,
) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Inventario del técnico "+stock.TechnicianID, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(g.headerRow(stock))
	m.AddRows(g.summaryRow(summary))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))

	m.AddRows(sectionRow("MATERIALES EN PODER DEL TÉCNICO"))
	m.AddRows(headerCells([]string{"Material", "Actual", "Apartada", "Disponible", "Último movimiento"}, []int{4, 2, 2, 2, 2}))
	for _, r := range g.materialRows(stock.Materials()) {
		m.AddRows(r)
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(sectionRow(fmt.Sprintf("ÚLTIMOS MOVIMIENTOS (%d)", len(movements))))
	m.AddRows(headerCells([]string{"Fecha", "Tipo", "Material", "Cantidad", "Origen"}, []int{3, 2, 3, 2, 2}))
	for _, r := range g.movementRows(movements) {
		m.AddRows(r)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar reporte de inventario: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func (g *MarotoStockReport) headerRow(stock *entity.TechnicianStock) core.Row {
	return row.New(16).Add(
		col.New(8).Add(
			text.New("INVENTARIO DE TÉCNICO", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(stock.TechnicianID, props.Text{
				Style: fontstyle.Bold, Size: 13, Top: 6,
			}),
		),
		col.New(4).Add(
			text.New("Fecha de corte: "+g.now().Format("02/01/2006 15:04"), props.Text{
				Size: 8, Align: align.Right, Top: 2, Color: colorGray,
			}),
			text.New("Actualizado: "+stock.UpdatedAt.Format("02/01/2006 15:04"), props.Text{
				Size: 8, Align: align.Right, Top: 8, Color: colorGray,
			}),
		),
	)
}

func (g *MarotoStockReport) summaryRow(s entity.StockSummary) core.Row {
	cell := func(label, value string) core.Col {
		return col.New(2).Add(
			text.New(label, props.Text{Size: 7, Color: colorGray, Align: align.Center, Top: 1}),
			text.New(value, props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Center, Top: 5}),
		)
	}
	return row.New(12).Add(
		cell("Líneas", g.printer.Sprintf("%d", s.Lines)),
		cell("Actual", g.qty(s.OnHand)),
		cell("Apartada", g.qty(s.Reserved)),
		cell("Disponible", g.qty(s.Available)),
		cell("Stock bajo", g.printer.Sprintf("%d", s.LowStockLines)),
		col.New(2),
	)
}

func sectionRow(title string) core.Row {
	return row.New(7).Add(col.New(12).Add(
		text.New(title, props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 2}),
	))
}

func headerCells(labels []string, sizes []int) core.Row {
	cols := make([]core.Col, 0, len(labels))
	for i, l := range labels {
		cols = append(cols, col.New(sizes[i]).Add(text.New(l, props.Text{
			Style: fontstyle.Bold, Size: 8, Top: 1, Left: 1,
		})))
	}
	return row.New(6).Add(cols...)
}

func (g *MarotoStockReport) materialRows(lines []entity.MaterialStock) []core.Row {
	if len(lines) == 0 {
		return []core.Row{row.New(6).Add(col.New(12).Add(
			text.New("Sin materiales registrados.", props.Text{Size: 8, Color: colorGray, Top: 1}),
		))}
	}
	rows := make([]core.Row, 0, len(lines))
	for _, l := range lines {
		availStyle := props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1}
		if l.Available.LessThan(g.lowStockThreshold) {
			availStyle.Color = colorAlert
			availStyle.Style = fontstyle.Bold
		}
		rows = append(rows, row.New(6).Add(
			col.New(4).Add(text.New(l.MaterialID, props.Text{Size: 8, Top: 1, Left: 1})),
			col.New(2).Add(text.New(g.qty(l.OnHand), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
			col.New(2).Add(text.New(g.qty(l.Reserved), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
			col.New(2).Add(text.New(g.qty(l.Available), availStyle)),
			col.New(2).Add(text.New(formatTime(l.LastMovementAt), props.Text{Size: 7, Top: 1, Left: 1, Color: colorGray})),
		))
	}
	return rows
}

func (g *MarotoStockReport) movementRows(movs []*entity.MaterialMovement) []core.Row {
	rows := make([]core.Row, 0, len(movs))
	for _, mv := range movs {
		qty := g.qty(mv.Quantity)
		if mv.Kind == entity.MovementKindAdjust && mv.Direction == entity.DirectionOut {
			qty = "-" + qty
		}
		rows = append(rows, row.New(5).Add(
			col.New(3).Add(text.New(formatTime(mv.OccurredAt), props.Text{Size: 7, Top: 1, Left: 1})),
			col.New(2).Add(text.New(kindLabels[mv.Kind], props.Text{Size: 7, Top: 1})),
			col.New(3).Add(text.New(mv.MaterialID, props.Text{Size: 7, Top: 1})),
			col.New(2).Add(text.New(qty, props.Text{Size: 7, Align: align.Right, Top: 1, Right: 1})),
			col.New(2).Add(text.New(mv.OriginReferenceID, props.Text{Size: 7, Top: 1, Color: colorGray})),
		))
	}
	return rows
}

// ── helpers ───────────────────────────────────────────────────────────────────

// qty formatea con separadores en español; ej. 1.5 → "1,50".
func (g *MarotoStockReport) qty(d decimal.Decimal) string {
	return g.printer.Sprintf("%.2f", d.InexactFloat64())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02/01/2006 15:04")
}

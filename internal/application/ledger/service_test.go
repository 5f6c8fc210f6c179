package ledger_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/application/ledger"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/entity"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/repository"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/infrastructure/memory"
)

const (
	tech  = "tec-1"
	mat   = "M"
	actor = "user-1"
)

func d(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

// clock avanza un segundo en cada lectura para que el orden por fecha sea estable.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	store *memory.Store
	svc   *ledger.Service
	reg   *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	reg := prometheus.NewRegistry()
	clk := &clock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	svc := ledger.NewService(ledger.ServiceDeps{
		TxRunner: memory.NewTxRunner(store),
		Reader:   store,
		Metrics:  ledger.NewMetrics(reg),
		Clock:    clk.Now,
		Config:   ledger.Config{RetryInitialInterval: time.Millisecond},
	})
	return &fixture{store: store, svc: svc, reg: reg}
}

// seed deja al técnico con {onHand: qty, reserved: 0, available: qty} para mat.
func (f *fixture) seed(t *testing.T, qty int64) {
	t.Helper()
	_, err := f.svc.Adjust(context.Background(), ledger.AdjustInput{
		TechnicianID: tech, MaterialID: mat, Delta: d(qty), Reason: "carga inicial", ActorID: actor,
	})
	require.NoError(t, err)
}

func (f *fixture) line(t *testing.T) entity.MaterialStock {
	t.Helper()
	st, err := f.store.Stocks().Get(context.Background(), tech)
	require.NoError(t, err)
	require.NotNil(t, st)
	m, ok := st.Material(mat)
	require.True(t, ok)
	return m
}

func (f *fixture) assertLine(t *testing.T, onHand, reserved, available int64) {
	t.Helper()
	m := f.line(t)
	assert.True(t, m.OnHand.Equal(d(onHand)), "actual %s", m.OnHand)
	assert.True(t, m.Reserved.Equal(d(reserved)), "apartada %s", m.Reserved)
	assert.True(t, m.Available.Equal(d(available)), "disponible %s", m.Available)
}

func (f *fixture) movements(t *testing.T, kind entity.MovementKind) []*entity.MaterialMovement {
	t.Helper()
	list, err := f.svc.ListMovements(context.Background(), tech, repository.MovementFilter{Kind: kind})
	require.NoError(t, err)
	return list
}

func reserveIn(qty int64) ledger.ReserveInput {
	return ledger.ReserveInput{TechnicianID: tech, MaterialID: mat, Quantity: d(qty), Reason: "orden", OriginReferenceID: "ord-1", ActorID: actor}
}

// ── Escenarios del flujo principal ───────────────────────────────────────────

func TestService_FlujoReservaConsumoDevolucion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 10)

	mov, err := f.svc.Reserve(ctx, reserveIn(4))
	require.NoError(t, err)
	assert.Equal(t, entity.MovementKindReserve, mov.Kind)
	assert.True(t, mov.Quantity.Equal(d(4)))
	assert.True(t, mov.VisibleToAnalysts)
	assert.Equal(t, entity.OriginWorkOrder, mov.Origin)
	assert.Equal(t, "ord-1", mov.OriginReferenceID)
	f.assertLine(t, 10, 4, 6)
	assert.Len(t, f.movements(t, entity.MovementKindReserve), 1)

	_, err = f.svc.Reserve(ctx, reserveIn(7))
	var conflict *domain.StockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.True(t, conflict.Current.Equal(d(6)))
	assert.True(t, conflict.Requested.Equal(d(7)))
	f.assertLine(t, 10, 4, 6)
	assert.Len(t, f.movements(t, entity.MovementKindReserve), 1, "un rechazo no deja movimiento")

	mov, err = f.svc.CommitConsumption(ctx, ledger.ConsumeInput{
		TechnicianID: tech, MaterialID: mat, Quantity: d(3), OriginReferenceID: "ord-1", OrderReference: "POL-9", ActorID: actor,
	})
	require.NoError(t, err)
	assert.Equal(t, "Consumo de material en orden POL-9", mov.Reason)
	f.assertLine(t, 7, 1, 6)

	_, err = f.svc.ReturnMaterial(ctx, ledger.ReturnInput{
		TechnicianID: tech, MaterialID: mat, Quantity: d(1), Reason: "sobrante", ActorID: actor,
	})
	require.NoError(t, err)
	f.assertLine(t, 7, 0, 7)
	assert.Len(t, f.movements(t, entity.MovementKindReturn), 1)

	_, err = f.svc.ReturnMaterial(ctx, ledger.ReturnInput{
		TechnicianID: tech, MaterialID: mat, Quantity: d(5), Reason: "sobrante", ActorID: actor,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientReservedStock)
	f.assertLine(t, 7, 0, 7)
}

func TestService_SummarizeSinRegistroNoCrea(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sum, err := f.svc.Summarize(ctx, "tec-nuevo")
	require.NoError(t, err)
	assert.Equal(t, "tec-nuevo", sum.TechnicianID)
	assert.Equal(t, 0, sum.Lines)
	assert.True(t, sum.OnHand.IsZero())
	assert.True(t, sum.Available.IsZero())

	st, err := f.store.Stocks().Get(ctx, "tec-nuevo")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestService_SummarizeUmbralStockBajo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 6)
	_, err := f.svc.Reserve(ctx, reserveIn(2))
	require.NoError(t, err)

	sum, err := f.svc.Summarize(ctx, tech)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Lines)
	assert.Equal(t, 1, sum.LowStockLines, "disponible 4 < 5")
}

func TestService_SummarizeUmbralCeroDeshabilita(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	zero := decimal.Zero
	svc := ledger.NewService(ledger.ServiceDeps{
		TxRunner: memory.NewTxRunner(store),
		Reader:   store,
		Config:   ledger.Config{LowStockThreshold: &zero},
	})
	_, err := svc.Adjust(ctx, ledger.AdjustInput{TechnicianID: tech, MaterialID: mat, Delta: d(1), Reason: "carga", ActorID: actor})
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, reserveIn(1))
	require.NoError(t, err)

	sum, err := svc.Summarize(ctx, tech)
	require.NoError(t, err)
	assert.True(t, svc.LowStockThreshold().IsZero())
	assert.Equal(t, 0, sum.LowStockLines, "disponible 0 con umbral 0")
}

func TestService_CantidadConCuatroDecimales(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 2)

	qty := decimal.RequireFromString("1.2345")
	mov, err := f.svc.Reserve(ctx, ledger.ReserveInput{TechnicianID: tech, MaterialID: mat, Quantity: qty, ActorID: actor})
	require.NoError(t, err)
	assert.True(t, mov.Quantity.Equal(qty))
	assert.True(t, f.line(t).Reserved.Equal(qty), "el stock y el ledger mueven la misma cantidad")
}

func TestService_GetOrCreateIdempotente(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.svc.GetOrCreate(ctx, tech)
	require.NoError(t, err)
	b, err := f.svc.GetOrCreate(ctx, tech)
	require.NoError(t, err)

	assert.Equal(t, a.CreatedAt, b.CreatedAt)
	assert.Equal(t, a.Version, b.Version)
	assert.Equal(t, 0, b.Len())
}

// ── Errores ──────────────────────────────────────────────────────────────────

func TestService_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Reserve(ctx, reserveIn(1))
	assert.ErrorIs(t, err, domain.ErrTechnicianStockNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.GetOrCreate(ctx, tech)
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, reserveIn(1))
	assert.ErrorIs(t, err, domain.ErrMaterialNotFound)

	_, err = f.svc.ReturnMaterial(ctx, ledger.ReturnInput{TechnicianID: tech, MaterialID: mat, Quantity: d(1), ActorID: actor})
	assert.ErrorIs(t, err, domain.ErrMaterialNotFound)

	_, err = f.svc.Adjust(ctx, ledger.AdjustInput{TechnicianID: "otro", MaterialID: mat, Delta: d(-1), Reason: "merma", ActorID: actor})
	assert.ErrorIs(t, err, domain.ErrTechnicianStockNotFound)
}

// panicRunner falla el test si se abre una transacción.
type panicRunner struct{ t *testing.T }

func (p panicRunner) Run(context.Context, func(ledger.UnitOfWork) error) error {
	p.t.Fatal("no debe abrirse transacción para una entrada inválida")
	return nil
}

func TestService_ValidacionAntesDeTocarElStore(t *testing.T) {
	ctx := context.Background()
	svc := ledger.NewService(ledger.ServiceDeps{TxRunner: panicRunner{t}})

	cases := []struct {
		name  string
		call  func() error
		field string
	}{
		{"cantidad cero", func() error { _, err := svc.Reserve(ctx, ledger.ReserveInput{TechnicianID: tech, MaterialID: mat, ActorID: actor}); return err }, "quantity"},
		{"cantidad negativa", func() error {
			_, err := svc.CommitConsumption(ctx, ledger.ConsumeInput{TechnicianID: tech, MaterialID: mat, Quantity: d(-1), ActorID: actor})
			return err
		}, "quantity"},
		{"sin técnico", func() error { _, err := svc.ReturnMaterial(ctx, ledger.ReturnInput{MaterialID: mat, Quantity: d(1), ActorID: actor}); return err }, "technician_id"},
		{"sin material", func() error { _, err := svc.Reserve(ctx, ledger.ReserveInput{TechnicianID: tech, Quantity: d(1), ActorID: actor}); return err }, "material_id"},
		{"sin actor", func() error { _, err := svc.Reserve(ctx, ledger.ReserveInput{TechnicianID: tech, MaterialID: mat, Quantity: d(1)}); return err }, "actor_id"},
		{"ajuste en cero", func() error {
			_, err := svc.Adjust(ctx, ledger.AdjustInput{TechnicianID: tech, MaterialID: mat, Reason: "x", ActorID: actor})
			return err
		}, "delta"},
		{"ajuste sin motivo", func() error {
			_, err := svc.Adjust(ctx, ledger.AdjustInput{TechnicianID: tech, MaterialID: mat, Delta: d(1), ActorID: actor})
			return err
		}, "reason"},
		{"getOrCreate sin técnico", func() error { _, err := svc.GetOrCreate(ctx, ""); return err }, "technician_id"},
		{"más de cuatro decimales", func() error {
			_, err := svc.Reserve(ctx, ledger.ReserveInput{TechnicianID: tech, MaterialID: mat, Quantity: decimal.RequireFromString("0.00006"), ActorID: actor})
			return err
		}, "quantity"},
		{"decimales que redondean a cero", func() error {
			_, err := svc.CommitConsumption(ctx, ledger.ConsumeInput{TechnicianID: tech, MaterialID: mat, Quantity: decimal.RequireFromString("0.00001"), ActorID: actor})
			return err
		}, "quantity"},
		{"cantidad fuera de rango", func() error {
			_, err := svc.ReturnMaterial(ctx, ledger.ReturnInput{TechnicianID: tech, MaterialID: mat, Quantity: decimal.New(1, 14), ActorID: actor})
			return err
		}, "quantity"},
		{"ajuste con cinco decimales", func() error {
			_, err := svc.Adjust(ctx, ledger.AdjustInput{TechnicianID: tech, MaterialID: mat, Delta: decimal.RequireFromString("-1.00001"), Reason: "x", ActorID: actor})
			return err
		}, "delta"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

// ── Consumo auditado sin inventario ──────────────────────────────────────────

func TestService_ConsumoSinRegistroSoloAudita(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mov, err := f.svc.CommitConsumption(ctx, ledger.ConsumeInput{
		TechnicianID: tech, MaterialID: mat, Quantity: d(2), OrderReference: "POL-1", ActorID: actor,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.MovementKindConsume, mov.Kind)

	st, err := f.store.Stocks().Get(ctx, tech)
	require.NoError(t, err)
	assert.Nil(t, st, "el consumo no crea inventario")
	assert.Len(t, f.movements(t, entity.MovementKindConsume), 1)
}

func TestService_ConsumoSinLineaSoloAudita(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 5)

	_, err := f.svc.CommitConsumption(ctx, ledger.ConsumeInput{
		TechnicianID: tech, MaterialID: "otro", Quantity: d(2), ActorID: actor,
	})
	require.NoError(t, err)
	f.assertLine(t, 5, 0, 5)

	list, err := f.svc.ListMovements(ctx, tech, repository.MovementFilter{MaterialID: "otro"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_ConsumoMayorQueActualQuedaEnCero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 3)

	mov, err := f.svc.CommitConsumption(ctx, ledger.ConsumeInput{TechnicianID: tech, MaterialID: mat, Quantity: d(5), ActorID: actor})
	require.NoError(t, err)
	assert.True(t, mov.Quantity.Equal(d(5)), "el movimiento registra lo reportado")
	f.assertLine(t, 0, 0, 0)
}

// ── Ajustes ──────────────────────────────────────────────────────────────────

func TestService_AjusteCreaRegistroYLinea(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mov, err := f.svc.Adjust(ctx, ledger.AdjustInput{
		TechnicianID: tech, MaterialID: mat, Delta: d(5), Reason: "entrega de bodega", ActorID: actor, HiddenFromAnalysts: true,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.DirectionIn, mov.Direction)
	assert.Equal(t, entity.OriginManual, mov.Origin)
	assert.False(t, mov.VisibleToAnalysts)
	f.assertLine(t, 5, 0, 5)

	mov, err = f.svc.Adjust(ctx, ledger.AdjustInput{
		TechnicianID: tech, MaterialID: mat, Delta: d(-2), Reason: "merma", ActorID: actor,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.DirectionOut, mov.Direction)
	assert.True(t, mov.Quantity.Equal(d(2)), "la cantidad del movimiento siempre es positiva")
	f.assertLine(t, 3, 0, 3)

	_, err = f.svc.Adjust(ctx, ledger.AdjustInput{
		TechnicianID: tech, MaterialID: mat, Delta: d(-4), Reason: "merma", ActorID: actor,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	f.assertLine(t, 3, 0, 3)
}

// ── Historial ────────────────────────────────────────────────────────────────

func TestService_ListMovements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 10)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Reserve(ctx, reserveIn(1))
		require.NoError(t, err)
	}
	_, err := f.svc.Adjust(ctx, ledger.AdjustInput{
		TechnicianID: tech, MaterialID: mat, Delta: d(1), Reason: "interno", ActorID: actor, HiddenFromAnalysts: true,
	})
	require.NoError(t, err)

	all, err := f.svc.ListMovements(ctx, tech, repository.MovementFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].OccurredAt.After(all[i].OccurredAt), "más reciente primero")
	}

	hidden := false
	list, err := f.svc.ListMovements(ctx, tech, repository.MovementFilter{VisibleToAnalysts: &hidden})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "interno", list[0].Reason)

	list, err = f.svc.ListMovements(ctx, tech, repository.MovementFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// Página siguiente por ventana de tiempo.
	to := list[1].OccurredAt.Add(-time.Nanosecond)
	list, err = f.svc.ListMovements(ctx, tech, repository.MovementFilter{To: &to})
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = f.svc.ListMovements(ctx, "sin-movimientos", repository.MovementFilter{})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = f.svc.ListMovements(ctx, tech, repository.MovementFilter{Kind: "transfer"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	from := to.Add(time.Hour)
	_, err = f.svc.ListMovements(ctx, tech, repository.MovementFilter{From: &from, To: &to})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestService_ListMovementsTopeDeCien(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 200)
	for i := 0; i < 110; i++ {
		_, err := f.svc.Reserve(ctx, reserveIn(1))
		require.NoError(t, err)
	}

	list, err := f.svc.ListMovements(ctx, tech, repository.MovementFilter{Limit: 500})
	require.NoError(t, err)
	assert.Len(t, list, ledger.DefaultHistoryLimit)
}

func TestService_ListMovementsPaginaConCursor(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	// Todos los movimientos comparten fecha: el cursor debe avanzar igual.
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	svc := ledger.NewService(ledger.ServiceDeps{
		TxRunner: memory.NewTxRunner(store),
		Reader:   store,
		Clock:    func() time.Time { return at },
	})
	_, err := svc.Adjust(ctx, ledger.AdjustInput{TechnicianID: tech, MaterialID: mat, Delta: d(200), Reason: "carga", ActorID: actor})
	require.NoError(t, err)
	for i := 0; i < 150; i++ {
		_, err := svc.Reserve(ctx, reserveIn(1))
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	var pages []int
	before := ""
	for {
		page, err := svc.ListMovements(ctx, tech, repository.MovementFilter{BeforeID: before})
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		pages = append(pages, len(page))
		for _, m := range page {
			assert.False(t, seen[m.ID], "movimiento repetido entre páginas: %s", m.ID)
			seen[m.ID] = true
		}
		before = page[len(page)-1].ID
		require.Less(t, len(pages), 5, "la paginación no avanza")
	}
	assert.Equal(t, []int{100, 51}, pages)
	assert.Len(t, seen, 151)
}

func TestService_ListMovementsCursorInvalido(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 1)

	for _, before := range []string{"no-es-uuid", "7f1c2a4e-0000-4000-8000-000000000000"} {
		_, err := f.svc.ListMovements(ctx, tech, repository.MovementFilter{BeforeID: before})
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr, before)
		assert.Equal(t, "before", verr.Field)
	}

	// Un cursor de otro técnico no sirve.
	own, err := f.svc.ListMovements(ctx, tech, repository.MovementFilter{})
	require.NoError(t, err)
	_, err = f.svc.ListMovements(ctx, "tec-2", repository.MovementFilter{BeforeID: own[0].ID})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// ── Concurrencia ─────────────────────────────────────────────────────────────

func TestService_ReservasConcurrentes(t *testing.T) {
	const (
		n         = 25
		available = 7
	)
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, available)

	var ok, conflicts atomic.Int32
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := f.svc.Reserve(ctx, reserveIn(1))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, available, ok.Load())
	assert.EqualValues(t, n-available, conflicts.Load())
	f.assertLine(t, available, available, 0)
	assert.Len(t, f.movements(t, entity.MovementKindReserve), available)
}

// ── Reintentos ───────────────────────────────────────────────────────────────

// flakyRunner devuelve ErrWriteConflict las primeras fails veces y luego delega.
type flakyRunner struct {
	next  ledger.TxRunner
	fails int
	calls int
}

func (r *flakyRunner) Run(ctx context.Context, fn func(ledger.UnitOfWork) error) error {
	r.calls++
	if r.calls <= r.fails {
		return domain.ErrWriteConflict
	}
	return r.next.Run(ctx, fn)
}

func newRetryService(t *testing.T, runner *flakyRunner, store *memory.Store, reg prometheus.Registerer) *ledger.Service {
	t.Helper()
	runner.next = memory.NewTxRunner(store)
	return ledger.NewService(ledger.ServiceDeps{
		TxRunner: runner,
		Reader:   store,
		Metrics:  ledger.NewMetrics(reg),
		Config:   ledger.Config{MaxRetries: 3, RetryInitialInterval: time.Millisecond},
	})
}

func TestService_ReintentaConflictosDeEscritura(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	runner := &flakyRunner{fails: 2}
	svc := newRetryService(t, runner, store, prometheus.NewRegistry())

	_, err := svc.GetOrCreate(ctx, tech)
	require.NoError(t, err)
	assert.Equal(t, 3, runner.calls)
}

func TestService_ReintentosAgotados(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	reg := prometheus.NewRegistry()
	runner := &flakyRunner{fails: 1000}
	svc := newRetryService(t, runner, store, reg)

	_, err := svc.Reserve(ctx, reserveIn(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTryAgain)
	assert.ErrorIs(t, err, domain.ErrWriteConflict)
	assert.Equal(t, 4, runner.calls, "1 intento + 3 reintentos")

	exp := `
# HELP inventory_ledger_write_conflict_retries_total Reintentos por conflicto de escritura concurrente.
# TYPE inventory_ledger_write_conflict_retries_total counter
inventory_ledger_write_conflict_retries_total{operation="reserve"} 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(exp), "inventory_ledger_write_conflict_retries_total"))
}

func TestService_ErrorDeDominioNoSeReintenta(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	runner := &flakyRunner{}
	svc := newRetryService(t, runner, store, prometheus.NewRegistry())

	_, err := svc.Reserve(ctx, reserveIn(1))
	assert.ErrorIs(t, err, domain.ErrTechnicianStockNotFound)
	assert.Equal(t, 1, runner.calls)
}

// ── Transacción del caller ───────────────────────────────────────────────────

func TestService_InTxParticipaDelRollbackDelCaller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 10)

	tx, err := f.store.Begin(ctx)
	require.NoError(t, err)
	_, err = f.svc.ReserveInTx(ctx, tx, reserveIn(4))
	require.NoError(t, err)
	_, err = f.svc.CommitConsumptionInTx(ctx, tx, ledger.ConsumeInput{TechnicianID: tech, MaterialID: mat, Quantity: d(1), ActorID: actor})
	require.NoError(t, err)
	tx.Rollback()

	f.assertLine(t, 10, 0, 10)
	assert.Empty(t, f.movements(t, entity.MovementKindReserve))
	assert.Empty(t, f.movements(t, entity.MovementKindConsume))
}

func TestService_InTxConCommitDelCaller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tx, err := f.store.Begin(ctx)
	require.NoError(t, err)
	_, err = f.svc.GetOrCreateInTx(ctx, tx, tech)
	require.NoError(t, err)
	_, err = f.svc.AdjustInTx(ctx, tx, ledger.AdjustInput{TechnicianID: tech, MaterialID: mat, Delta: d(6), Reason: "carga", ActorID: actor})
	require.NoError(t, err)
	_, err = f.svc.ReserveInTx(ctx, tx, reserveIn(2))
	require.NoError(t, err)
	_, err = f.svc.ReturnMaterialInTx(ctx, tx, ledger.ReturnInput{TechnicianID: tech, MaterialID: mat, Quantity: d(1), ActorID: actor})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	f.assertLine(t, 6, 1, 5)
	all, err := f.svc.ListMovements(ctx, tech, repository.MovementFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// ── Métricas y reporte ───────────────────────────────────────────────────────

func TestService_MetricasPorResultado(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 1)

	_, err := f.svc.Reserve(ctx, reserveIn(1))
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, reserveIn(1))
	require.Error(t, err)

	exp := `
# HELP inventory_ledger_operations_total Operaciones del ledger por tipo y resultado.
# TYPE inventory_ledger_operations_total counter
inventory_ledger_operations_total{operation="adjust",outcome="ok"} 1
inventory_ledger_operations_total{operation="reserve",outcome="conflict"} 1
inventory_ledger_operations_total{operation="reserve",outcome="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(exp), "inventory_ledger_operations_total"))
}

type fakeReport struct {
	summary entity.StockSummary
	movs    int
}

func (r *fakeReport) GenerateStockReport(_ context.Context, _ *entity.TechnicianStock, s entity.StockSummary, m []*entity.MaterialMovement) ([]byte, error) {
	r.summary = s
	r.movs = len(m)
	return []byte("%PDF"), nil
}

func TestService_StockReport(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rep := &fakeReport{}
	svc := ledger.NewService(ledger.ServiceDeps{TxRunner: memory.NewTxRunner(store), Reader: store, Reports: rep})

	_, err := svc.StockReport(ctx, tech)
	assert.ErrorIs(t, err, domain.ErrTechnicianStockNotFound)

	_, err = svc.Adjust(ctx, ledger.AdjustInput{TechnicianID: tech, MaterialID: mat, Delta: d(3), Reason: "carga", ActorID: actor})
	require.NoError(t, err)

	doc, err := svc.StockReport(ctx, tech)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), doc)
	assert.Equal(t, 1, rep.summary.Lines)
	assert.Equal(t, 1, rep.movs)

	_, err = ledger.NewService(ledger.ServiceDeps{Reader: store}).StockReport(ctx, tech)
	assert.Error(t, err, "sin generador configurado")
}

// Package memory implementa los puertos del ledger en memoria de proceso.
// Cada transacción toma el store completo en exclusiva (serializable) y sus escrituras
// solo se publican en Commit. Pensado para desarrollo local y tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/application/ledger"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/entity"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/repository"
)

var (
	_ ledger.TxRunner   = (*TxRunner)(nil)
	_ ledger.UnitOfWork = (*Tx)(nil)
	_ ledger.UnitOfWork = (*Store)(nil)
)

// ErrTxDone la transacción ya terminó.
var ErrTxDone = errors.New("memory: transacción finalizada")

// Store estado comprometido.
type Store struct {
	sem       chan struct{} // exclusión de transacciones
	mu        sync.RWMutex  // protege stocks/movements
	stocks    map[string]*entity.TechnicianStock
	movements []*entity.MaterialMovement
}

// NewStore crea un store vacío.
func NewStore() *Store {
	return &Store{
		sem:    make(chan struct{}, 1),
		stocks: make(map[string]*entity.TechnicianStock),
	}
}

// Begin abre una transacción; espera a que termine la anterior o a que ctx se cancele.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Tx{store: s, stocks: make(map[string]*entity.TechnicianStock)}, nil
}

// Stocks lecturas fuera de transacción sobre el estado comprometido.
func (s *Store) Stocks() repository.TechnicianStockRepository { return committedStocks{s} }

// Movements lecturas fuera de transacción sobre el estado comprometido.
func (s *Store) Movements() repository.MaterialMovementRepository { return committedMovements{s} }

// TxRunner implementa ledger.TxRunner sobre un Store.
type TxRunner struct {
	store *Store
}

// NewTxRunner construye el runner.
func NewTxRunner(store *Store) *TxRunner {
	return &TxRunner{store: store}
}

// Run ejecuta fn en una transacción; Commit si no hay error.
func (r *TxRunner) Run(ctx context.Context, fn func(uow ledger.UnitOfWork) error) error {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Tx unidad de trabajo con escrituras en staging.
type Tx struct {
	store     *Store
	stocks    map[string]*entity.TechnicianStock
	movements []*entity.MaterialMovement
	done      bool
}

// Stocks repositorio de stock atado a la transacción.
func (t *Tx) Stocks() repository.TechnicianStockRepository { return txStocks{t} }

// Movements repositorio de movimientos atado a la transacción.
func (t *Tx) Movements() repository.MaterialMovementRepository { return txMovements{t} }

// Commit publica las escrituras y libera el store.
func (t *Tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.store.mu.Lock()
	for id, st := range t.stocks {
		t.store.stocks[id] = st
	}
	t.store.movements = append(t.store.movements, t.movements...)
	t.store.mu.Unlock()
	t.finish()
	return nil
}

// Rollback descarta las escrituras. Es seguro llamarlo después de Commit.
func (t *Tx) Rollback() {
	if t.done {
		return
	}
	t.finish()
}

func (t *Tx) finish() {
	t.done = true
	t.stocks = nil
	t.movements = nil
	<-t.store.sem
}

func (t *Tx) current(technicianID string) *entity.TechnicianStock {
	if st, ok := t.stocks[technicianID]; ok {
		return st
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.stocks[technicianID]
}

// ── repos en transacción ─────────────────────────────────────────────────────

type txStocks struct{ tx *Tx }

func (r txStocks) Get(_ context.Context, technicianID string) (*entity.TechnicianStock, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}
	if st := r.tx.current(technicianID); st != nil {
		return st.Clone(), nil
	}
	return nil, nil
}

// GetForUpdate equivale a Get: la transacción ya tiene el store en exclusiva.
func (r txStocks) GetForUpdate(ctx context.Context, technicianID string) (*entity.TechnicianStock, error) {
	return r.Get(ctx, technicianID)
}

func (r txStocks) Create(_ context.Context, stock *entity.TechnicianStock) error {
	if r.tx.done {
		return ErrTxDone
	}
	if r.tx.current(stock.TechnicianID) != nil {
		return nil
	}
	r.tx.stocks[stock.TechnicianID] = stock.Clone()
	return nil
}

func (r txStocks) Save(_ context.Context, stock *entity.TechnicianStock) error {
	if r.tx.done {
		return ErrTxDone
	}
	cur := r.tx.current(stock.TechnicianID)
	if cur == nil || cur.Version != stock.Version {
		return domain.ErrWriteConflict
	}
	stock.Version++
	r.tx.stocks[stock.TechnicianID] = stock.Clone()
	return nil
}

type txMovements struct{ tx *Tx }

func (r txMovements) Append(_ context.Context, m *entity.MaterialMovement) error {
	if r.tx.done {
		return ErrTxDone
	}
	cp := *m
	r.tx.movements = append(r.tx.movements, &cp)
	return nil
}

func (r txMovements) List(_ context.Context, technicianID string, f repository.MovementFilter) ([]*entity.MaterialMovement, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}
	r.tx.store.mu.RLock()
	all := make([]*entity.MaterialMovement, 0, len(r.tx.store.movements)+len(r.tx.movements))
	all = append(all, r.tx.store.movements...)
	r.tx.store.mu.RUnlock()
	all = append(all, r.tx.movements...)
	return filterMovements(all, technicianID, f)
}

// ── lecturas comprometidas ───────────────────────────────────────────────────

type committedStocks struct{ s *Store }

func (r committedStocks) Get(_ context.Context, technicianID string) (*entity.TechnicianStock, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if st, ok := r.s.stocks[technicianID]; ok {
		return st.Clone(), nil
	}
	return nil, nil
}

func (r committedStocks) GetForUpdate(ctx context.Context, technicianID string) (*entity.TechnicianStock, error) {
	return nil, errors.New("memory: GetForUpdate requiere una transacción")
}

func (r committedStocks) Create(context.Context, *entity.TechnicianStock) error {
	return errors.New("memory: escritura fuera de transacción")
}

func (r committedStocks) Save(context.Context, *entity.TechnicianStock) error {
	return errors.New("memory: escritura fuera de transacción")
}

type committedMovements struct{ s *Store }

func (r committedMovements) Append(context.Context, *entity.MaterialMovement) error {
	return errors.New("memory: escritura fuera de transacción")
}

func (r committedMovements) List(_ context.Context, technicianID string, f repository.MovementFilter) ([]*entity.MaterialMovement, error) {
	r.s.mu.RLock()
	all := make([]*entity.MaterialMovement, len(r.s.movements))
	copy(all, r.s.movements)
	r.s.mu.RUnlock()
	return filterMovements(all, technicianID, f)
}

// filterMovements aplica el filtro y ordena del más reciente al más antiguo; a igual
// fecha gana el insertado después.
func filterMovements(all []*entity.MaterialMovement, technicianID string, f repository.MovementFilter) ([]*entity.MaterialMovement, error) {
	type indexed struct {
		m   *entity.MaterialMovement
		pos int
	}
	cursor := -1
	if f.BeforeID != "" {
		for i, m := range all {
			if m.ID == f.BeforeID && m.TechnicianID == technicianID {
				cursor = i
				break
			}
		}
		if cursor < 0 {
			return nil, domain.NewValidationError("before", "movimiento desconocido")
		}
	}
	var hits []indexed
	for i, m := range all {
		if m.TechnicianID != technicianID {
			continue
		}
		if cursor >= 0 && !olderThan(m, i, all[cursor], cursor) {
			continue
		}
		if f.Kind != "" && m.Kind != f.Kind {
			continue
		}
		if f.MaterialID != "" && m.MaterialID != f.MaterialID {
			continue
		}
		if f.VisibleToAnalysts != nil && m.VisibleToAnalysts != *f.VisibleToAnalysts {
			continue
		}
		if f.From != nil && m.OccurredAt.Before(*f.From) {
			continue
		}
		if f.To != nil && m.OccurredAt.After(*f.To) {
			continue
		}
		hits = append(hits, indexed{m, i})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if !a.m.OccurredAt.Equal(b.m.OccurredAt) {
			return a.m.OccurredAt.After(b.m.OccurredAt)
		}
		return a.pos > b.pos
	})
	if f.Limit > 0 && len(hits) > f.Limit {
		hits = hits[:f.Limit]
	}
	out := make([]*entity.MaterialMovement, len(hits))
	for i, h := range hits {
		cp := *h.m
		out[i] = &cp
	}
	return out, nil
}

// olderThan compara por (occurred_at, posición de inserción), el mismo orden del listado.
func olderThan(m *entity.MaterialMovement, pos int, ref *entity.MaterialMovement, refPos int) bool {
	if !m.OccurredAt.Equal(ref.OccurredAt) {
		return m.OccurredAt.Before(ref.OccurredAt)
	}
	return pos < refPos
}

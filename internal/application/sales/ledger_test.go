package sales_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/TioCoco-api/internal/application/sales"
	"github.com/jhoicas/TioCoco-api/internal/domain"
	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
	"github.com/jhoicas/TioCoco-api/internal/domain/repository"
	"github.com/jhoicas/TioCoco-api/internal/infrastructure/memory"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

type fixedRate float64

func (r fixedRate) Current() entity.Rate {
	return entity.Rate{Value: float64(r), Origin: entity.RateOriginCached}
}

type recordingPublisher struct {
	mu        sync.Mutex
	committed []string
	reversed  []string
	deleted   []string
}

func (p *recordingPublisher) SaleCommitted(_ context.Context, s *entity.Sale) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.committed = append(p.committed, s.ID)
	return nil
}

func (p *recordingPublisher) SaleReversed(_ context.Context, s *entity.Sale, _ []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reversed = append(p.reversed, s.ID)
	return nil
}

func (p *recordingPublisher) SaleDeleted(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
	return nil
}

type fixture struct {
	store  *memory.Store
	ledger *sales.SaleLedger
	events *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	events := &recordingPublisher{}
	ledger := sales.NewSaleLedger(store.TxRunner(), store.Products(), store.Sales(), fixedRate(36.5), zerolog.Nop(),
		sales.WithPublisher(events))
	return &fixture{store: store, ledger: ledger, events: events}
}

func (f *fixture) addProduct(t *testing.T, id string, qty int, price string) {
	t.Helper()
	err := f.store.Products().Create(context.Background(), &entity.Product{
		ID: id, Name: "Producto " + id, Quantity: qty, UnitPriceUSD: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
}

func (f *fixture) quantity(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.Products().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p, "producto %s", id)
	return p.Quantity
}

func newSale(id string, lines ...entity.SaleLineItem) *entity.Sale {
	return &entity.Sale{ID: id, Items: lines}
}

func line(productID string, qty int) entity.SaleLineItem {
	return entity.SaleLineItem{ProductID: productID, Quantity: qty}
}

// ──────────────────────────────────────────────────────────────────────────────
// CommitSale
// ──────────────────────────────────────────────────────────────────────────────

func TestCommitSale_DescuentaStockYRegistraVenta(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 10, "2.50")
	f.addProduct(t, "P2", 4, "1.00")

	res, err := f.ledger.CommitSale(context.Background(), newSale("S1", line("P1", 3), line("P2", 4)))

	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 7, f.quantity(t, "P1"))
	assert.Equal(t, 0, f.quantity(t, "P2"))

	stored, err := f.ledger.GetSale(context.Background(), "S1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("11.50").Equal(stored.TotalUSD), "total %s", stored.TotalUSD)
	assert.Equal(t, 36.5, stored.ExchangeRate)
	assert.Equal(t, "Producto P1", stored.Items[0].Name)
	assert.True(t, decimal.RequireFromString("419.75").Equal(stored.TotalLocal()))
	assert.Equal(t, []string{"S1"}, f.events.committed)
}

func TestCommitSale_ConcurrenciaNoSobrevende(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 5, "1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.ledger.CommitSale(context.Background(), newSale(fmt.Sprintf("S%d", i), line("P1", 3)))
		}(i)
	}
	wg.Wait()

	ok, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("error inesperado: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 2, f.quantity(t, "P1"))
}

func TestCommitSale_MuchasVentasConcurrentes(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 5, "1")

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.ledger.CommitSale(context.Background(), newSale(fmt.Sprintf("S%02d", i), line("P1", 1))); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, 0, f.quantity(t, "P1"))
	history, err := f.ledger.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, history, 5)
}

func TestCommitSale_Idempotente(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 5, "1")
	sale := newSale("S1", line("P1", 2))

	first, err := f.ledger.CommitSale(context.Background(), sale)
	require.NoError(t, err)
	second, err := f.ledger.CommitSale(context.Background(), sale)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, 3, f.quantity(t, "P1"))
	assert.Len(t, f.events.committed, 1)
}

func TestCommitSale_ReenvioSinStockSigueSiendoDuplicado(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 3, "1")
	sale := newSale("S1", line("P1", 3))

	_, err := f.ledger.CommitSale(context.Background(), sale)
	require.NoError(t, err)
	again, err := f.ledger.CommitSale(context.Background(), sale)

	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, 0, f.quantity(t, "P1"))
}

func TestCommitSale_StockInsuficiente(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 2, "1")
	f.addProduct(t, "P2", 9, "1")

	_, err := f.ledger.CommitSale(context.Background(), newSale("S1", line("P2", 1), line("P1", 3)))

	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var ise *sales.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "P1", ise.ProductID)
	assert.Equal(t, 3, ise.Requested)
	assert.Equal(t, 2, ise.Available)

	assert.Equal(t, 2, f.quantity(t, "P1"))
	assert.Equal(t, 9, f.quantity(t, "P2"), "ningún producto se descuenta si la venta falla")
	_, err = f.ledger.GetSale(context.Background(), "S1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCommitSale_LineasRepetidasSeSuman(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 3, "1")

	_, err := f.ledger.CommitSale(context.Background(), newSale("S1", line("P1", 2), line("P1", 2)))

	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 3, f.quantity(t, "P1"))
}

func TestCommitSale_ProductoInexistente(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.CommitSale(context.Background(), newSale("S1", line("NOPE", 1)))

	var ise *sales.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 0, ise.Available)
}

func TestCommitSale_EntradaInvalida(t *testing.T) {
	f := newFixture(t)
	cases := map[string]*entity.Sale{
		"sin id":          newSale("", line("P1", 1)),
		"sin productos":   newSale("S1"),
		"cantidad cero":   newSale("S1", line("P1", 0)),
		"producto sin id": newSale("S1", line("", 1)),
		"venta nula":      nil,
	}
	for name, sale := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.ledger.CommitSale(context.Background(), sale)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

// staleProducts devuelve lecturas atrasadas con más stock del real, como si otra venta
// hubiera descontado entre la verificación previa y la transacción.
type staleProducts struct {
	repository.ProductRepository
	extra int
}

func (r staleProducts) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	p, err := r.ProductRepository.GetByID(ctx, id)
	if p != nil {
		cp := *p
		cp.Quantity += r.extra
		return &cp, err
	}
	return p, err
}

func TestCommitSale_StockInsuficienteDentroDeLaTransaccion(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Products().Create(context.Background(), &entity.Product{
		ID: "P1", Name: "Pan", Quantity: 5, UnitPriceUSD: decimal.NewFromInt(1),
	}))
	events := &recordingPublisher{}
	ledger := sales.NewSaleLedger(store.TxRunner(), staleProducts{ProductRepository: store.Products(), extra: 100},
		store.Sales(), fixedRate(36.5), zerolog.Nop(), sales.WithPublisher(events))

	_, err := ledger.CommitSale(context.Background(), newSale("S1", line("P1", 8)))

	var ise *sales.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "P1", ise.ProductID)
	assert.Equal(t, 8, ise.Requested)
	assert.Equal(t, 5, ise.Available, "la cantidad reportada es la leída bajo bloqueo")

	stored, err := store.Sales().GetByID(context.Background(), "S1")
	require.NoError(t, err)
	assert.Nil(t, stored, "no debe quedar registro de la venta")
	p, err := store.Products().GetByID(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Quantity)
	assert.Empty(t, events.committed)
}

func TestCommitSale_FalloDelAlmacenAborta(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 5, "1")
	f.store.InjectCommitFault(errors.New("conexión perdida"))

	_, err := f.ledger.CommitSale(context.Background(), newSale("S1", line("P1", 2)))

	require.ErrorIs(t, err, domain.ErrAborted)
	assert.Equal(t, 5, f.quantity(t, "P1"))

	// Reintentar la misma venta es seguro.
	res, err := f.ledger.CommitSale(context.Background(), newSale("S1", line("P1", 2)))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 3, f.quantity(t, "P1"))
}

// ──────────────────────────────────────────────────────────────────────────────
// ReverseSale
// ──────────────────────────────────────────────────────────────────────────────

func TestReverseSale_RestauraStock(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 10, "1")
	f.addProduct(t, "P2", 4, "2")
	sale := newSale("S1", line("P1", 3), line("P2", 1))

	_, err := f.ledger.CommitSale(context.Background(), sale)
	require.NoError(t, err)

	res, err := f.ledger.ReverseSale(context.Background(), sale)
	require.NoError(t, err)
	assert.False(t, res.Partial())
	assert.ElementsMatch(t, []string{"P1", "P2"}, res.Restored)
	assert.Equal(t, 10, f.quantity(t, "P1"))
	assert.Equal(t, 4, f.quantity(t, "P2"))

	stored, err := f.ledger.GetSale(context.Background(), "S1")
	require.NoError(t, err)
	assert.True(t, stored.IsVoided())

	history, err := f.ledger.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Equal(t, []string{"S1"}, f.events.reversed)
}

func TestReverseSale_DosVecesNoDuplicaStock(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 10, "1")
	sale := newSale("S1", line("P1", 3))
	_, err := f.ledger.CommitSale(context.Background(), sale)
	require.NoError(t, err)

	_, err = f.ledger.ReverseSale(context.Background(), sale)
	require.NoError(t, err)
	again, err := f.ledger.ReverseSale(context.Background(), sale)
	require.NoError(t, err)

	assert.True(t, again.AlreadyReversed)
	assert.Equal(t, 10, f.quantity(t, "P1"))
}

func TestReverseSale_ProductoEliminadoEsParcial(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 10, "1")
	f.addProduct(t, "P2", 5, "1")
	sale := newSale("S1", line("P1", 2), line("P2", 1))
	_, err := f.ledger.CommitSale(context.Background(), sale)
	require.NoError(t, err)
	require.NoError(t, f.store.Products().Delete(context.Background(), "P2"))

	res, err := f.ledger.ReverseSale(context.Background(), sale)

	require.NoError(t, err)
	assert.True(t, res.Partial())
	assert.Equal(t, []string{"P2"}, res.Skipped)
	assert.Equal(t, 10, f.quantity(t, "P1"))
}

func TestReverseSale_UsaLineasRegistradas(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 10, "1")
	_, err := f.ledger.CommitSale(context.Background(), newSale("S1", line("P1", 3)))
	require.NoError(t, err)

	// Líneas recibidas alteradas: más unidades y un producto que no se vendió.
	f.addProduct(t, "P2", 1, "1")
	res, err := f.ledger.ReverseSale(context.Background(), newSale("S1", line("P1", 50), line("P2", 7)))

	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, res.Restored)
	assert.Equal(t, 10, f.quantity(t, "P1"))
	assert.Equal(t, 1, f.quantity(t, "P2"))
}

func TestReverseSale_FalloDelAlmacenAborta(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 10, "1")
	sale := newSale("S1", line("P1", 4))
	_, err := f.ledger.CommitSale(context.Background(), sale)
	require.NoError(t, err)
	f.store.InjectCommitFault(errors.New("timeout"))

	_, err = f.ledger.ReverseSale(context.Background(), sale)

	require.ErrorIs(t, err, domain.ErrAborted)
	assert.Equal(t, 6, f.quantity(t, "P1"))
	stored, _ := f.ledger.GetSale(context.Background(), "S1")
	assert.False(t, stored.IsVoided())
}

// ──────────────────────────────────────────────────────────────────────────────
// Historial
// ──────────────────────────────────────────────────────────────────────────────

func TestDeleteSaleRecord_NoRestauraStock(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 10, "1")
	_, err := f.ledger.CommitSale(context.Background(), newSale("S1", line("P1", 4)))
	require.NoError(t, err)

	require.NoError(t, f.ledger.DeleteSaleRecord(context.Background(), "S1"))

	assert.Equal(t, 6, f.quantity(t, "P1"))
	assert.ErrorIs(t, f.ledger.DeleteSaleRecord(context.Background(), "S1"), domain.ErrNotFound)
	assert.Equal(t, []string{"S1"}, f.events.deleted)
}

func TestFilterByDate(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 10, "1")
	march := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	april := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

	for id, date := range map[string]time.Time{"S-mar": march, "S-apr": april} {
		sale := newSale(id, line("P1", 1))
		sale.Date = date
		_, err := f.ledger.CommitSale(context.Background(), sale)
		require.NoError(t, err)
	}

	got, err := f.ledger.FilterByDate(context.Background(), "2024-03")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "S-mar", got[0].ID)

	all, err := f.ledger.FilterByDate(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "S-apr", all[0].ID, "más recientes primero")
}

func TestClearHistory_NoRestauraStock(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "P1", 10, "1")
	for _, id := range []string{"S1", "S2"} {
		_, err := f.ledger.CommitSale(context.Background(), newSale(id, line("P1", 1)))
		require.NoError(t, err)
	}

	n, err := f.ledger.ClearHistory(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 8, f.quantity(t, "P1"))
	history, _ := f.ledger.History(context.Background())
	assert.Empty(t, history)
}

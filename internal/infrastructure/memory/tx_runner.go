package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/TioCoco-api/internal/domain"
	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
	"github.com/jhoicas/TioCoco-api/internal/domain/repository"
)

// ErrReadAfterWrite una transacción leyó después de haber escrito.
var ErrReadAfterWrite = errors.New("lectura después de escritura dentro de la transacción")

// TxRunner ejecuta fn con repositorios que escriben en una copia; solo se aplica si fn termina sin error.
type TxRunner struct {
	s *Store
}

// Run implementa el TxRunner del libro de ventas.
func (r *TxRunner) Run(ctx context.Context, fn func(stockRepo repository.StockRepository, saleRepo repository.SaleTxRepository) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		s:          r.s,
		quantities: make(map[string]int),
		created:    make(map[string]*entity.Sale),
		voided:     make(map[string]time.Time),
	}
	if err := fn(&txStock{tx: tx}, &txSales{tx: tx}); err != nil {
		return err
	}

	if r.s.fault != nil {
		err := r.s.fault
		r.s.fault = nil
		return fmt.Errorf("commit transaction: %w", err)
	}
	tx.apply()
	return nil
}

type memTx struct {
	s          *Store
	wrote      bool
	quantities map[string]int
	created    map[string]*entity.Sale
	voided     map[string]time.Time
}

func (tx *memTx) apply() {
	now := tx.s.now()
	for id, q := range tx.quantities {
		p, ok := tx.s.products[id]
		if !ok {
			continue
		}
		p.Quantity = q
		p.UpdatedAt = now
		tx.s.feed.publish(entity.ChangeModified, p, now)
	}
	for id, sale := range tx.created {
		tx.s.sales[id] = sale
	}
	for id, at := range tx.voided {
		if sale, ok := tx.s.sales[id]; ok {
			t := at
			sale.VoidedAt = &t
		}
	}
}

type txStock struct {
	tx *memTx
}

func (r *txStock) GetForUpdate(ctx context.Context, productID string) (*entity.Product, error) {
	if r.tx.wrote {
		return nil, ErrReadAfterWrite
	}
	p, ok := r.tx.s.products[productID]
	if !ok {
		return nil, nil
	}
	cp := cloneProduct(p)
	if q, ok := r.tx.quantities[productID]; ok {
		cp.Quantity = q
	}
	return cp, nil
}

func (r *txStock) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	r.tx.wrote = true
	if _, ok := r.tx.s.products[productID]; !ok {
		return domain.ErrNotFound
	}
	if quantity < 0 {
		return fmt.Errorf("update quantity %s: %d: %w", productID, quantity, domain.ErrInsufficientStock)
	}
	r.tx.quantities[productID] = quantity
	return nil
}

type txSales struct {
	tx *memTx
}

func (r *txSales) GetForUpdate(ctx context.Context, saleID string) (*entity.Sale, error) {
	if r.tx.wrote {
		return nil, ErrReadAfterWrite
	}
	sale, ok := r.tx.s.sales[saleID]
	if !ok {
		return nil, nil
	}
	return cloneSale(sale), nil
}

func (r *txSales) Create(ctx context.Context, sale *entity.Sale) error {
	r.tx.wrote = true
	if _, ok := r.tx.s.sales[sale.ID]; ok {
		return domain.ErrDuplicate
	}
	if _, ok := r.tx.created[sale.ID]; ok {
		return domain.ErrDuplicate
	}
	r.tx.created[sale.ID] = cloneSale(sale)
	return nil
}

func (r *txSales) MarkVoided(ctx context.Context, saleID string, at time.Time) error {
	r.tx.wrote = true
	if _, ok := r.tx.s.sales[saleID]; !ok {
		return domain.ErrNotFound
	}
	r.tx.voided[saleID] = at
	return nil
}

package sales

import (
	"context"

	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
	"github.com/jhoicas/TioCoco-api/internal/domain/repository"
)

// TxRunner ejecuta fn dentro de una transacción del almacén, pasando repositorios atados a ella.
// Si fn devuelve error no se aplica ningún cambio.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		stockRepo repository.StockRepository,
		saleRepo repository.SaleTxRepository,
	) error) error
}

// RateSnapshot lectura de la tasa vigente sin tocar la red.
type RateSnapshot interface {
	Current() entity.Rate
}

// EventPublisher publica eventos de ventas. La publicación es best-effort.
type EventPublisher interface {
	SaleCommitted(ctx context.Context, sale *entity.Sale) error
	SaleReversed(ctx context.Context, sale *entity.Sale, skipped []string) error
	SaleDeleted(ctx context.Context, saleID string) error
}

// Metrics contadores del libro de ventas.
type Metrics interface {
	SaleCommitted(duplicate bool)
	SaleRejected(reason string)
	SaleReversed(partial bool)
}

type nopPublisher struct{}

func (nopPublisher) SaleCommitted(context.Context, *entity.Sale) error           { return nil }
func (nopPublisher) SaleReversed(context.Context, *entity.Sale, []string) error { return nil }
func (nopPublisher) SaleDeleted(context.Context, string) error                  { return nil }

type nopMetrics struct{}

func (nopMetrics) SaleCommitted(bool)  {}
func (nopMetrics) SaleRejected(string) {}
func (nopMetrics) SaleReversed(bool)   {}

package kafka

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
)

// Tipos de evento publicados.
const (
	EventSaleCommitted   = "sale.committed"
	EventSaleReversed    = "sale.reversed"
	EventSaleDeleted     = "sale.deleted"
	EventProductAdded    = "product.added"
	EventProductModified = "product.modified"
	EventProductRemoved  = "product.removed"
)

// Envelope sobre común de todos los eventos.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// SaleEvent datos de una venta confirmada o revertida.
type SaleEvent struct {
	SaleID       string                `json:"sale_id"`
	Date         time.Time             `json:"date"`
	Items        []entity.SaleLineItem `json:"items,omitempty"`
	TotalUSD     decimal.Decimal       `json:"total_usd"`
	TotalLocal   decimal.Decimal       `json:"total_local"`
	ExchangeRate float64               `json:"exchange_rate"`
	Skipped      []string              `json:"skipped,omitempty"`
}

// SaleDeletedEvent borrado de registro.
type SaleDeletedEvent struct {
	SaleID string `json:"sale_id"`
}

// ProductEvent cambio de catálogo reenviado desde el feed.
type ProductEvent struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitPriceUSD decimal.Decimal `json:"unit_price_usd"`
}

func newSaleEvent(sale *entity.Sale, skipped []string) SaleEvent {
	return SaleEvent{
		SaleID:       sale.ID,
		Date:         sale.Date,
		Items:        sale.Items,
		TotalUSD:     sale.TotalUSD,
		TotalLocal:   sale.TotalLocal(),
		ExchangeRate: sale.ExchangeRate,
		Skipped:      skipped,
	}
}

func productEventType(t entity.ChangeType) string {
	switch t {
	case entity.ChangeAdded:
		return EventProductAdded
	case entity.ChangeRemoved:
		return EventProductRemoved
	default:
		return EventProductModified
	}
}

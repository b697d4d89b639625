package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleLineItem copia del producto al momento de la venta (no es una referencia viva).
type SaleLineItem struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	UnitPriceUSD decimal.Decimal `json:"unit_price_usd"`
	Quantity     int             `json:"quantity"`
}

// Subtotal precio unitario por cantidad, en dólares.
func (i SaleLineItem) Subtotal() decimal.Decimal {
	return i.UnitPriceUSD.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Sale registro de una venta. El total en bolívares se deriva de TotalUSD y ExchangeRate.
type Sale struct {
	ID           string
	Date         time.Time
	Items        []SaleLineItem
	TotalUSD     decimal.Decimal
	ExchangeRate float64    // tasa vigente al confirmar la venta
	VoidedAt     *time.Time // no nulo cuando la venta fue revertida (devolución)
}

// ComputeTotalUSD suma los subtotales de las líneas.
func (s *Sale) ComputeTotalUSD() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// TotalLocal total en moneda local; nunca se guarda para evitar descuadres.
func (s *Sale) TotalLocal() decimal.Decimal {
	return s.TotalUSD.Mul(decimal.NewFromFloat(s.ExchangeRate)).Round(2)
}

// IsVoided indica si la venta ya fue revertida.
func (s *Sale) IsVoided() bool {
	return s.VoidedAt != nil
}

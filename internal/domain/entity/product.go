package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product representa un producto del catálogo.
// Quantity es el stock disponible; solo el libro de ventas lo descuenta o lo restaura.
type Product struct {
	ID           string
	Name         string
	Quantity     int
	UnitPriceUSD decimal.Decimal // precio unitario en dólares
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasEnoughStock indica si hay stock para vender required unidades.
func (p *Product) HasEnoughStock(required int) bool {
	return p.Quantity >= required
}

// PriceLocal precio en moneda local (Bs.) para la tasa dada. Valor derivado, nunca se persiste.
func (p *Product) PriceLocal(rate float64) decimal.Decimal {
	return p.UnitPriceUSD.Mul(decimal.NewFromFloat(rate)).Round(2)
}

package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleItemRequest línea de venta; name y precio se completan desde el catálogo si faltan.
type SaleItemRequest struct {
	ProductID    string           `json:"product_id" validate:"required"`
	Quantity     int              `json:"quantity" validate:"min=1"`
	Name         string           `json:"name,omitempty"`
	UnitPriceUSD *decimal.Decimal `json:"unit_price_usd,omitempty"`
}

// CommitSaleRequest entrada para confirmar una venta. ID opcional (se genera un UUID);
// reenviar el mismo ID es idempotente.
type CommitSaleRequest struct {
	ID           string            `json:"id,omitempty"`
	Date         *time.Time        `json:"date,omitempty"`
	ExchangeRate float64           `json:"exchange_rate,omitempty"`
	Items        []SaleItemRequest `json:"items" validate:"required,min=1"`
}

// SaleItemResponse línea guardada en la venta.
type SaleItemResponse struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	UnitPriceUSD decimal.Decimal `json:"unit_price_usd"`
	Quantity     int             `json:"quantity"`
	SubtotalUSD  decimal.Decimal `json:"subtotal_usd"`
}

// SaleResponse salida de una venta; total_local se deriva de total_usd y exchange_rate.
type SaleResponse struct {
	ID           string             `json:"id"`
	Date         time.Time          `json:"date"`
	Items        []SaleItemResponse `json:"items"`
	TotalUSD     decimal.Decimal    `json:"total_usd"`
	TotalLocal   decimal.Decimal    `json:"total_local"`
	ExchangeRate float64            `json:"exchange_rate"`
	VoidedAt     *time.Time         `json:"voided_at,omitempty"`
}

// CommitSaleResponse resultado de confirmar.
type CommitSaleResponse struct {
	Sale      SaleResponse `json:"sale"`
	Duplicate bool         `json:"duplicate"`
}

// ReverseSaleResponse resultado de revertir.
type ReverseSaleResponse struct {
	SaleID          string   `json:"sale_id"`
	AlreadyReversed bool     `json:"already_reversed"`
	Partial         bool     `json:"partial"`
	Restored        []string `json:"restored"`
	Skipped         []string `json:"skipped"`
}

// SaleListResponse historial.
type SaleListResponse struct {
	Items []SaleResponse `json:"items"`
	Total int            `json:"total"`
}

// ClearHistoryResponse cantidad de registros borrados.
type ClearHistoryResponse struct {
	Deleted int `json:"deleted"`
}

// InsufficientStockResponse detalle del rechazo por stock.
type InsufficientStockResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateProductRequest entrada para crear un producto.
type CreateProductRequest struct {
	Name         string          `json:"name" validate:"required,min=1,max=200"`
	Quantity     int             `json:"quantity" validate:"min=0"`
	UnitPriceUSD decimal.Decimal `json:"unit_price_usd"`
}

// UpdateProductRequest actualización parcial; Quantity permite reponer stock desde el catálogo.
type UpdateProductRequest struct {
	Name         *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Quantity     *int             `json:"quantity" validate:"omitempty,min=0"`
	UnitPriceUSD *decimal.Decimal `json:"unit_price_usd"`
}

// ProductResponse salida de un producto con el precio en Bs. a la tasa vigente.
type ProductResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	UnitPriceUSD decimal.Decimal `json:"unit_price_usd"`
	PriceLocal   decimal.Decimal `json:"price_local"`
	Rate         float64         `json:"rate"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ProductListResponse lista paginada de productos.
type ProductListResponse struct {
	Items []ProductResponse `json:"items"`
	Page  PageResponse      `json:"page"`
}

package dto

import "github.com/shopspring/decimal"

// DashboardSummaryDTO respuesta de GET /api/dashboard/summary.
// KPIs del día y del mes en curso, top 5 productos del mes y productos con poco stock.
type DashboardSummaryDTO struct {
	// Día actual (00:00 – ahora)
	TodaySalesCount int             `json:"today_sales_count"`
	TodaySalesUSD   decimal.Decimal `json:"today_sales_usd"`
	TodaySalesLocal decimal.Decimal `json:"today_sales_local"` // suma de cada venta a su tasa

	// Mes en curso (día 1 – ahora)
	MonthlySalesCount int             `json:"monthly_sales_count"`
	MonthlySalesUSD   decimal.Decimal `json:"monthly_sales_usd"`
	MonthlySalesLocal decimal.Decimal `json:"monthly_sales_local"`

	TopProducts []TopProductDTO `json:"top_products"`
	LowStock    []LowStockDTO   `json:"low_stock"`

	DateLabel string `json:"date_label"` // ej: "Febrero 2026"
}

// TopProductDTO producto más vendido del mes.
type TopProductDTO struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	QuantitySold int             `json:"quantity_sold"`
	RevenueUSD   decimal.Decimal `json:"revenue_usd"`
}

// LowStockDTO producto con stock en o bajo el umbral.
type LowStockDTO struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

package dto

import "github.com/jhoicas/TioCoco-api/internal/domain/entity"

// NewSaleResponse convierte una venta del dominio.
func NewSaleResponse(s *entity.Sale) SaleResponse {
	items := make([]SaleItemResponse, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, SaleItemResponse{
			ProductID:    it.ProductID,
			Name:         it.Name,
			UnitPriceUSD: it.UnitPriceUSD,
			Quantity:     it.Quantity,
			SubtotalUSD:  it.Subtotal(),
		})
	}
	return SaleResponse{
		ID:           s.ID,
		Date:         s.Date,
		Items:        items,
		TotalUSD:     s.TotalUSD,
		TotalLocal:   s.TotalLocal(),
		ExchangeRate: s.ExchangeRate,
		VoidedAt:     s.VoidedAt,
	}
}

// NewSaleListResponse convierte un listado.
func NewSaleListResponse(list []*entity.Sale) SaleListResponse {
	items := make([]SaleResponse, 0, len(list))
	for _, s := range list {
		items = append(items, NewSaleResponse(s))
	}
	return SaleListResponse{Items: items, Total: len(items)}
}

// NewRateResponse convierte la tasa del dominio.
func NewRateResponse(r entity.Rate) RateResponse {
	out := RateResponse{
		Value:  r.Value,
		Origin: string(r.Origin),
		Reason: string(r.Reason),
		Stale:  r.IsStale(),
	}
	if !r.AcquiredAt.IsZero() {
		t := r.AcquiredAt
		out.AcquiredAt = &t
	}
	return out
}

// Package analytics contiene el resumen de ventas del día y del mes para el
// Dashboard del punto de venta.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/TioCoco-api/internal/application/dto"
	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
	"github.com/jhoicas/TioCoco-api/internal/domain/repository"
)

const (
	dashboardTopProducts   = 5 // número de productos en el widget del dashboard
	DefaultLowStockMaximum = 5
)

// DashboardUseCase genera el resumen del día y del mes en curso.
//
// Fuente de datos: historial de ventas y catálogo (solo lectura).
// Las ventas revertidas no cuentan.
type DashboardUseCase struct {
	sales    repository.SaleRepository
	products repository.ProductRepository
	now      func() time.Time
}

// NewDashboardUseCase construye el caso de uso.
func NewDashboardUseCase(sales repository.SaleRepository, products repository.ProductRepository) *DashboardUseCase {
	return &DashboardUseCase{sales: sales, products: products, now: time.Now}
}

// WithClock reemplaza el reloj (tests).
func (uc *DashboardUseCase) WithClock(now func() time.Time) *DashboardUseCase {
	uc.now = now
	return uc
}

// GetSummary construye el DashboardSummaryDTO.
//
// Dos lecturas en paralelo:
//  1. historial de ventas  → totales de hoy y del mes, top 5 del mes
//  2. catálogo             → productos con stock <= lowStockMax
func (uc *DashboardUseCase) GetSummary(ctx context.Context, lowStockMax int) (*dto.DashboardSummaryDTO, error) {
	now := uc.now()

	// ── Rangos de fecha ────────────────────────────────────────────────────────
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var (
		history  []*entity.Sale
		products []*entity.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = uc.sales.List(gctx)
		if err != nil {
			return fmt.Errorf("dashboard: historial: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		products, err = uc.products.List(gctx)
		if err != nil {
			return fmt.Errorf("dashboard: catálogo: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var today, month periodTotals
	top := make(map[string]*dto.TopProductDTO)
	for _, s := range history {
		if s.IsVoided() || s.Date.Before(monthStart) || s.Date.After(now) {
			continue
		}
		month.add(s)
		if !s.Date.Before(todayStart) {
			today.add(s)
		}
		for _, it := range s.Items {
			t, ok := top[it.ProductID]
			if !ok {
				t = &dto.TopProductDTO{ProductID: it.ProductID, ProductName: it.Name}
				top[it.ProductID] = t
			}
			t.QuantitySold += it.Quantity
			t.RevenueUSD = t.RevenueUSD.Add(it.Subtotal())
		}
	}

	return &dto.DashboardSummaryDTO{
		TodaySalesCount:   today.count,
		TodaySalesUSD:     today.usd.Round(2),
		TodaySalesLocal:   today.local.Round(2),
		MonthlySalesCount: month.count,
		MonthlySalesUSD:   month.usd.Round(2),
		MonthlySalesLocal: month.local.Round(2),
		TopProducts:       topProducts(top),
		LowStock:          lowStock(products, lowStockMax),
		DateLabel:         monthLabel(now),
	}, nil
}

type periodTotals struct {
	count int
	usd   decimal.Decimal
	local decimal.Decimal // cada venta a su propia tasa
}

func (p *periodTotals) add(s *entity.Sale) {
	p.count++
	p.usd = p.usd.Add(s.TotalUSD)
	p.local = p.local.Add(s.TotalLocal())
}

// topProducts ordena por unidades vendidas y luego por ingreso.
func topProducts(m map[string]*dto.TopProductDTO) []dto.TopProductDTO {
	out := make([]dto.TopProductDTO, 0, len(m))
	for _, t := range m {
		t.RevenueUSD = t.RevenueUSD.Round(2)
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.QuantitySold != b.QuantitySold {
			return a.QuantitySold > b.QuantitySold
		}
		if !a.RevenueUSD.Equal(b.RevenueUSD) {
			return a.RevenueUSD.GreaterThan(b.RevenueUSD)
		}
		return a.ProductID < b.ProductID
	})
	if len(out) > dashboardTopProducts {
		out = out[:dashboardTopProducts]
	}
	return out
}

// lowStock productos a reponer, los más urgentes primero.
func lowStock(products []*entity.Product, max int) []dto.LowStockDTO {
	out := make([]dto.LowStockDTO, 0)
	for _, p := range products {
		if p.Quantity <= max {
			out = append(out, dto.LowStockDTO{ProductID: p.ID, ProductName: p.Name, Quantity: p.Quantity})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quantity < out[j].Quantity })
	return out
}

// monthLabel devuelve una etiqueta legible del mes, ej: "Febrero 2026".
func monthLabel(t time.Time) string {
	months := [...]string{
		"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
		"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
	}
	return fmt.Sprintf("%s %d", months[t.Month()-1], t.Year())
}

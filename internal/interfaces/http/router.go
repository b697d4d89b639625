package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	appanalytics "github.com/jhoicas/TioCoco-api/internal/application/analytics"
	"github.com/jhoicas/TioCoco-api/internal/application/rate"
	"github.com/jhoicas/TioCoco-api/internal/application/sales"
	"github.com/jhoicas/TioCoco-api/internal/application/usecase"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	ProductUC   *usecase.ProductUseCase
	Ledger      *sales.SaleLedger
	Rates       *rate.RateCache
	DashboardUC *appanalytics.DashboardUseCase
	Metrics     nethttp.Handler // opcional; promhttp.HandlerFor(...)
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	api := app.Group("/api")

	// Tasa de cambio
	rateHandler := NewRateHandler(deps.Rates)
	api.Get("/rate", rateHandler.Get)
	api.Post("/rate/refresh", rateHandler.Refresh)

	// Products
	products := api.Group("/products")
	productHandler := NewProductHandler(deps.ProductUC)
	products.Post("/", productHandler.Create)
	products.Get("/", productHandler.List)
	products.Get("/search", productHandler.Search)
	products.Get("/:id", productHandler.GetByID)
	products.Put("/:id", productHandler.Update)
	products.Delete("/:id", productHandler.Delete)

	// Sales
	salesGroup := api.Group("/sales")
	saleHandler := NewSaleHandler(deps.Ledger)
	salesGroup.Post("/", saleHandler.Commit)
	salesGroup.Get("/", saleHandler.List)
	salesGroup.Delete("/", saleHandler.Clear)
	salesGroup.Get("/:id", saleHandler.GetByID)
	salesGroup.Delete("/:id", saleHandler.Delete)
	salesGroup.Post("/:id/reverse", saleHandler.Reverse)

	// Dashboard
	if deps.DashboardUC != nil {
		dashboardHandler := NewDashboardHandler(deps.DashboardUC)
		api.Get("/dashboard/summary", dashboardHandler.GetSummary)
	}
}

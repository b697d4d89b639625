package http

import (
	"github.com/gofiber/fiber/v2"

	appanalytics "github.com/jhoicas/TioCoco-api/internal/application/analytics"
)

// DashboardHandler maneja los endpoints del módulo de Dashboard.
type DashboardHandler struct {
	uc *appanalytics.DashboardUseCase
}

// NewDashboardHandler construye el handler.
func NewDashboardHandler(uc *appanalytics.DashboardUseCase) *DashboardHandler {
	return &DashboardHandler{uc: uc}
}

// GetSummary godoc
// @Summary      Resumen de ventas del día y del mes
// @Description  Totales en USD y Bs. (cada venta a su tasa), top 5 del mes y productos con stock <= low_stock.
// @Tags         dashboard
// @Produce      json
// @Param        low_stock  query  int  false  "Umbral de stock bajo"  default(5)
// @Success      200  {object}  dto.DashboardSummaryDTO
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/dashboard/summary [get]
func (h *DashboardHandler) GetSummary(c *fiber.Ctx) error {
	summary, err := h.uc.GetSummary(c.UserContext(), c.QueryInt("low_stock", appanalytics.DefaultLowStockMaximum))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(summary)
}

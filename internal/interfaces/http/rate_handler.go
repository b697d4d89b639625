package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/TioCoco-api/internal/application/dto"
	"github.com/jhoicas/TioCoco-api/internal/application/rate"
)

// RateHandler expone la tasa USD -> Bs.
type RateHandler struct {
	cache *rate.RateCache
}

// NewRateHandler construye el handler.
func NewRateHandler(cache *rate.RateCache) *RateHandler {
	return &RateHandler{cache: cache}
}

// Get godoc
// @Summary      Tasa vigente (sin consultar la red)
// @Tags         rate
// @Produce      json
// @Success      200  {object}  dto.RateResponse
// @Router       /api/rate [get]
func (h *RateHandler) Get(c *fiber.Ctx) error {
	return c.JSON(dto.NewRateResponse(h.cache.Current()))
}

// Refresh godoc
// @Summary      Actualizar la tasa desde las fuentes remotas
// @Description  Con force=false respeta la ventana de caché. Los resultados degradados devuelven 200 con origin=cached y su motivo.
// @Tags         rate
// @Produce      json
// @Param        force  query  bool  false  "Ignorar la ventana de caché"  default(true)
// @Success      200  {object}  dto.RateResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/rate/refresh [post]
func (h *RateHandler) Refresh(c *fiber.Ctx) error {
	r, err := h.cache.GetRate(c.UserContext(), c.QueryBool("force", true))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewRateResponse(r))
}

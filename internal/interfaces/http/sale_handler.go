package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/jhoicas/TioCoco-api/internal/application/dto"
	"github.com/jhoicas/TioCoco-api/internal/application/sales"
	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
)

// SaleHandler maneja las ventas del punto de venta.
type SaleHandler struct {
	ledger *sales.SaleLedger
}

// NewSaleHandler construye el handler.
func NewSaleHandler(ledger *sales.SaleLedger) *SaleHandler {
	return &SaleHandler{ledger: ledger}
}

// Commit godoc
// @Summary      Confirmar venta
// @Description  Descuenta el stock y guarda la venta en una sola transacción. Reenviar el mismo id devuelve 200 con duplicate=true.
// @Tags         sales
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CommitSaleRequest  true  "Venta"
// @Success      201   {object}  dto.CommitSaleResponse
// @Success      200   {object}  dto.CommitSaleResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.InsufficientStockResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/sales [post]
func (h *SaleHandler) Commit(c *fiber.Ctx) error {
	var in dto.CommitSaleRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	res, err := h.ledger.CommitSale(c.UserContext(), toSale(in))
	if err != nil {
		return writeError(c, err)
	}
	status := fiber.StatusCreated
	if res.Duplicate {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(dto.CommitSaleResponse{
		Sale:      dto.NewSaleResponse(res.Sale),
		Duplicate: res.Duplicate,
	})
}

// List godoc
// @Summary      Historial de ventas
// @Description  Sin date devuelve las ventas vigentes; con date filtra por subcadena de "YYYY-MM-DD HH:MM".
// @Tags         sales
// @Produce      json
// @Param        date  query  string  false  "Fecha o fragmento, p. ej. 2024-05-01"
// @Success      200   {object}  dto.SaleListResponse
// @Router       /api/sales [get]
func (h *SaleHandler) List(c *fiber.Ctx) error {
	var (
		list []*entity.Sale
		err  error
	)
	if q := c.Query("date"); q != "" {
		list, err = h.ledger.FilterByDate(c.UserContext(), q)
	} else {
		list, err = h.ledger.History(c.UserContext())
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewSaleListResponse(list))
}

// GetByID godoc
// @Summary      Obtener venta
// @Tags         sales
// @Produce      json
// @Param        id   path  string  true  "ID de la venta"
// @Success      200  {object}  dto.SaleResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/sales/{id} [get]
func (h *SaleHandler) GetByID(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return missingID(c)
	}
	s, err := h.ledger.GetSale(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewSaleResponse(s))
}

// Reverse godoc
// @Summary      Revertir venta (devolución)
// @Description  Repone el stock de cada línea y marca la venta como anulada. Productos ya eliminados se omiten (partial=true).
// @Tags         sales
// @Produce      json
// @Param        id   path  string  true  "ID de la venta"
// @Success      200  {object}  dto.ReverseSaleResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/sales/{id}/reverse [post]
func (h *SaleHandler) Reverse(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return missingID(c)
	}
	s, err := h.ledger.GetSale(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	res, err := h.ledger.ReverseSale(c.UserContext(), s)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ReverseSaleResponse{
		SaleID:          res.SaleID,
		AlreadyReversed: res.AlreadyReversed,
		Partial:         res.Partial(),
		Restored:        nonNil(res.Restored),
		Skipped:         nonNil(res.Skipped),
	})
}

// Delete godoc
// @Summary      Eliminar registro de venta (no repone stock)
// @Tags         sales
// @Param        id   path  string  true  "ID de la venta"
// @Success      204
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/sales/{id} [delete]
func (h *SaleHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return missingID(c)
	}
	if err := h.ledger.DeleteSaleRecord(c.UserContext(), id); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Clear godoc
// @Summary      Borrar todo el historial (no repone stock)
// @Tags         sales
// @Produce      json
// @Success      200  {object}  dto.ClearHistoryResponse
// @Router       /api/sales [delete]
func (h *SaleHandler) Clear(c *fiber.Ctx) error {
	n, err := h.ledger.ClearHistory(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ClearHistoryResponse{Deleted: n})
}

func toSale(in dto.CommitSaleRequest) *entity.Sale {
	s := &entity.Sale{
		ID:           in.ID,
		ExchangeRate: in.ExchangeRate,
		Items:        make([]entity.SaleLineItem, 0, len(in.Items)),
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if in.Date != nil {
		s.Date = *in.Date
	}
	for _, it := range in.Items {
		line := entity.SaleLineItem{ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity}
		if it.UnitPriceUSD != nil {
			line.UnitPriceUSD = *it.UnitPriceUSD
		}
		s.Items = append(s.Items, line)
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

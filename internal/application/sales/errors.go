package sales

import (
	"fmt"

	"github.com/jhoicas/TioCoco-api/internal/domain"
)

// InsufficientStockError la venta pediría más unidades de las disponibles.
// Available es 0 si el producto ya no existe.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock insuficiente para %s: solicitado %d, disponible %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return domain.ErrInsufficientStock }

func aborted(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrAborted, op, err)
}

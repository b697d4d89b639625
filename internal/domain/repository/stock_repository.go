package repository

import (
	"context"
	"time"

	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
)

// StockRepository puerto de lectura/escritura de stock dentro de una transacción.
// Todas las lecturas (GetForUpdate) deben hacerse antes de cualquier escritura.
type StockRepository interface {
	// GetForUpdate obtiene el producto y lo retiene hasta el fin de la transacción.
	// Devuelve (nil, nil) si el producto ya no existe.
	GetForUpdate(ctx context.Context, productID string) (*entity.Product, error)
	UpdateQuantity(ctx context.Context, productID string, quantity int) error
}

// SaleTxRepository puerto del registro de ventas atado a la misma transacción que el stock.
type SaleTxRepository interface {
	GetForUpdate(ctx context.Context, saleID string) (*entity.Sale, error)
	// Create inserta la venta; devuelve domain.ErrDuplicate si el ID ya existe.
	Create(ctx context.Context, sale *entity.Sale) error
	MarkVoided(ctx context.Context, saleID string, at time.Time) error
}

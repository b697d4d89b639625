package repository

import (
	"context"

	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
)

// SaleRepository puerto de consulta y borrado del historial de ventas.
// Borrar un registro nunca restaura stock.
type SaleRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Sale, error)
	// List devuelve todas las ventas (incluidas las revertidas), más recientes primero.
	List(ctx context.Context) ([]*entity.Sale, error)
	// Delete devuelve domain.ErrNotFound si no existe.
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int, error)
}

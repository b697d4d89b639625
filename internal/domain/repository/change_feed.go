package repository

import (
	"context"

	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
)

// ProductChangeFeed suscripción en vivo a altas, cambios y bajas de productos.
// El canal se cierra cuando ctx termina.
type ProductChangeFeed interface {
	Subscribe(ctx context.Context) (<-chan entity.ProductChange, error)
}

package entity

import "time"

// ChangeType tipo de cambio emitido por el feed de productos.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// ProductChange notificación push de alta, modificación o baja de un producto.
// En bajas solo se garantiza Product.ID.
type ProductChange struct {
	Type    ChangeType
	Product Product
	At      time.Time
}

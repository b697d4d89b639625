// Package memory implementa los puertos de persistencia en memoria.
// Sirve como almacén local (STORE_DRIVER=memory) y como doble de prueba del libro de ventas.
package memory

import (
	"sync"
	"time"

	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
)

// Store estado compartido por los repositorios en memoria.
// Un único mutex serializa las transacciones, equivalente a un bloqueo de todo el almacén.
type Store struct {
	mu       sync.Mutex
	products map[string]*entity.Product
	sales    map[string]*entity.Sale
	fault    error // si no es nil, la próxima transacción falla al confirmar
	now      func() time.Time

	feed *changeFeed
}

// NewStore crea un almacén vacío.
func NewStore() *Store {
	return &Store{
		products: make(map[string]*entity.Product),
		sales:    make(map[string]*entity.Sale),
		now:      time.Now,
		feed:     newChangeFeed(),
	}
}

// InjectCommitFault hace que la siguiente transacción falle con err sin aplicar cambios.
func (s *Store) InjectCommitFault(err error) {
	s.mu.Lock()
	s.fault = err
	s.mu.Unlock()
}

// Products repositorio de catálogo sobre este almacén.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// Sales repositorio de historial sobre este almacén.
func (s *Store) Sales() *SaleRepository { return &SaleRepository{s: s} }

// TxRunner ejecutor de transacciones sobre este almacén.
func (s *Store) TxRunner() *TxRunner { return &TxRunner{s: s} }

// ChangeFeed suscripción a cambios de productos.
func (s *Store) ChangeFeed() *ChangeFeed { return &ChangeFeed{s: s} }

func cloneProduct(p *entity.Product) *entity.Product {
	cp := *p
	return &cp
}

func cloneSale(sale *entity.Sale) *entity.Sale {
	cp := *sale
	cp.Items = append([]entity.SaleLineItem(nil), sale.Items...)
	if sale.VoidedAt != nil {
		t := *sale.VoidedAt
		cp.VoidedAt = &t
	}
	return &cp
}

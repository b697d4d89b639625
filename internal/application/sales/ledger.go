package sales

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/TioCoco-api/internal/domain"
	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
	"github.com/jhoicas/TioCoco-api/internal/domain/repository"
)

// CommitResult resultado de confirmar una venta.
// Duplicate indica que la venta ya existía y no se aplicó nada.
type CommitResult struct {
	Sale      *entity.Sale
	Duplicate bool
}

// ReversalResult resultado de revertir una venta.
// Skipped lista productos que ya no existen y por eso no recuperaron stock.
type ReversalResult struct {
	SaleID          string
	AlreadyReversed bool
	Restored        []string
	Skipped         []string
}

// Partial indica que la devolución se aplicó solo a una parte de los productos.
func (r *ReversalResult) Partial() bool { return len(r.Skipped) > 0 }

// Option configura dependencias opcionales del libro.
type Option func(*SaleLedger)

func WithClock(now func() time.Time) Option { return func(l *SaleLedger) { l.now = now } }

func WithPublisher(p EventPublisher) Option {
	return func(l *SaleLedger) {
		if p != nil {
			l.events = p
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(l *SaleLedger) {
		if m != nil {
			l.metrics = m
		}
	}
}

// SaleLedger confirma, revierte y consulta ventas manteniendo el stock consistente.
// Toda modificación de stock por ventas pasa por aquí, dentro de una transacción.
type SaleLedger struct {
	tx       TxRunner
	products repository.ProductRepository
	sales    repository.SaleRepository
	rates    RateSnapshot
	events   EventPublisher
	metrics  Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// NewSaleLedger construye el libro de ventas. rates puede ser nil.
func NewSaleLedger(tx TxRunner, products repository.ProductRepository, sales repository.SaleRepository, rates RateSnapshot, log zerolog.Logger, opts ...Option) *SaleLedger {
	l := &SaleLedger{
		tx:       tx,
		products: products,
		sales:    sales,
		rates:    rates,
		events:   nopPublisher{},
		metrics:  nopMetrics{},
		log:      log,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// ──────────────────────────────────────────────────────────────────────────────
// Confirmar venta
// ──────────────────────────────────────────────────────────────────────────────

// CommitSale descuenta el stock de cada línea y guarda la venta, todo o nada.
// Confirmar dos veces el mismo ID no vuelve a descontar: el segundo intento devuelve Duplicate.
func (l *SaleLedger) CommitSale(ctx context.Context, sale *entity.Sale) (*CommitResult, error) {
	if err := validateSale(sale); err != nil {
		return nil, err
	}
	items := mergeItems(sale.Items)

	if err := l.precheck(ctx, sale.ID, items); err != nil {
		l.reject(err)
		return nil, err
	}

	record := &entity.Sale{
		ID:           sale.ID,
		Date:         sale.Date,
		ExchangeRate: sale.ExchangeRate,
	}
	if record.Date.IsZero() {
		record.Date = l.now()
	}
	if record.ExchangeRate <= 0 && l.rates != nil {
		record.ExchangeRate = l.rates.Current().Value
	}

	var result CommitResult
	err := l.tx.Run(ctx, func(stockRepo repository.StockRepository, saleRepo repository.SaleTxRepository) error {
		result = CommitResult{}

		// Lecturas: productos en orden de ID y luego la venta.
		locked, err := lockProducts(ctx, stockRepo, items)
		if err != nil {
			return err
		}
		existing, err := saleRepo.GetForUpdate(ctx, sale.ID)
		if err != nil {
			return fmt.Errorf("read sale: %w", err)
		}
		if existing != nil {
			result = CommitResult{Sale: existing, Duplicate: true}
			return nil
		}

		// Decisión.
		newQty := make(map[string]int, len(items))
		snapshot := make([]entity.SaleLineItem, 0, len(items))
		for _, it := range items {
			p := locked[it.ProductID]
			if p == nil {
				return &InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity}
			}
			remaining := p.Quantity - it.Quantity
			if remaining < 0 {
				return &InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity, Available: p.Quantity}
			}
			newQty[it.ProductID] = remaining

			if it.Name == "" {
				it.Name = p.Name
			}
			if !it.UnitPriceUSD.IsPositive() {
				it.UnitPriceUSD = p.UnitPriceUSD
			}
			snapshot = append(snapshot, it)
		}
		record.Items = snapshot
		record.TotalUSD = record.ComputeTotalUSD()

		// Escrituras.
		if err := saleRepo.Create(ctx, record); err != nil {
			return err
		}
		for _, it := range items {
			if err := stockRepo.UpdateQuantity(ctx, it.ProductID, newQty[it.ProductID]); err != nil {
				return fmt.Errorf("update stock %s: %w", it.ProductID, err)
			}
		}
		result.Sale = record
		return nil
	})
	if err != nil {
		var ise *InsufficientStockError
		switch {
		case errors.As(err, &ise):
			l.reject(err)
			return nil, ise
		case errors.Is(err, domain.ErrDuplicate):
			// Otra transacción insertó el mismo ID entre la lectura y la escritura.
			stored, gerr := l.sales.GetByID(ctx, sale.ID)
			if gerr != nil || stored == nil {
				stored = record
			}
			result = CommitResult{Sale: stored, Duplicate: true}
		default:
			l.metrics.SaleRejected("aborted")
			l.log.Error().Err(err).Str("sale_id", sale.ID).Msg("transacción de venta abortada")
			return nil, aborted("commit sale", err)
		}
	}

	l.metrics.SaleCommitted(result.Duplicate)
	if result.Duplicate {
		l.log.Info().Str("sale_id", sale.ID).Msg("venta ya registrada, sin cambios")
		return &result, nil
	}

	l.log.Info().
		Str("sale_id", record.ID).
		Int("items", len(record.Items)).
		Str("total_usd", record.TotalUSD.StringFixed(2)).
		Float64("rate", record.ExchangeRate).
		Msg("venta confirmada")
	if err := l.events.SaleCommitted(ctx, record); err != nil {
		l.log.Warn().Err(err).Str("sale_id", record.ID).Msg("no se pudo publicar sale.committed")
	}
	return &result, nil
}

// precheck verificación previa fuera de la transacción; la decisión final es la transaccional.
// Si la venta ya existe no se valida el stock: la transacción la devolverá como duplicada.
func (l *SaleLedger) precheck(ctx context.Context, saleID string, items []entity.SaleLineItem) error {
	found := make([]*entity.Product, len(items))
	var existing *entity.Sale
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := l.sales.GetByID(gctx, saleID)
		existing = s
		return err
	})
	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			p, err := l.products.GetByID(gctx, it.ProductID)
			if err != nil {
				return err
			}
			found[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return aborted("precheck", err)
	}
	if existing != nil {
		return nil
	}

	for i, it := range items {
		p := found[i]
		if p == nil {
			return &InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity}
		}
		if !p.HasEnoughStock(it.Quantity) {
			return &InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity, Available: p.Quantity}
		}
	}
	return nil
}

func (l *SaleLedger) reject(err error) {
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		l.metrics.SaleRejected("insufficient_stock")
		l.log.Warn().
			Str("product_id", ise.ProductID).
			Int("requested", ise.Requested).
			Int("available", ise.Available).
			Msg("venta rechazada por stock")
		return
	}
	l.metrics.SaleRejected("aborted")
}

// ──────────────────────────────────────────────────────────────────────────────
// Revertir venta
// ──────────────────────────────────────────────────────────────────────────────

// ReverseSale devuelve al stock las unidades vendidas y marca la venta como revertida.
// Si la venta está registrada se restauran sus líneas guardadas, no las recibidas.
// Los productos que ya no existen se omiten sin fallar. Revertir dos veces no hace nada.
func (l *SaleLedger) ReverseSale(ctx context.Context, sale *entity.Sale) (*ReversalResult, error) {
	if err := validateSale(sale); err != nil {
		return nil, err
	}
	known, err := l.sales.GetByID(ctx, sale.ID)
	if err != nil {
		return nil, aborted("reverse sale", err)
	}
	if known != nil && len(known.Items) > 0 {
		sale = known
	}
	voidedAt := l.now()

	var result ReversalResult
	err = l.tx.Run(ctx, func(stockRepo repository.StockRepository, saleRepo repository.SaleTxRepository) error {
		result = ReversalResult{SaleID: sale.ID}
		items := mergeItems(sale.Items)

		locked, err := lockProducts(ctx, stockRepo, items)
		if err != nil {
			return err
		}
		stored, err := saleRepo.GetForUpdate(ctx, sale.ID)
		if err != nil {
			return fmt.Errorf("read sale: %w", err)
		}
		if stored != nil && stored.IsVoided() {
			result.AlreadyReversed = true
			return nil
		}

		if stored != nil {
			// Recreada con otras líneas entre la lectura previa y el bloqueo.
			if len(stored.Items) > 0 && !sameProducts(items, stored.Items) {
				return errStaleReversal
			}
			items = mergeItems(stored.Items)
			if err := saleRepo.MarkVoided(ctx, sale.ID, voidedAt); err != nil {
				return fmt.Errorf("void sale: %w", err)
			}
		}
		for _, it := range items {
			p := locked[it.ProductID]
			if p == nil {
				result.Skipped = append(result.Skipped, it.ProductID)
				continue
			}
			if err := stockRepo.UpdateQuantity(ctx, it.ProductID, p.Quantity+it.Quantity); err != nil {
				return fmt.Errorf("restore stock %s: %w", it.ProductID, err)
			}
			result.Restored = append(result.Restored, it.ProductID)
		}
		return nil
	})
	if err != nil {
		l.log.Error().Err(err).Str("sale_id", sale.ID).Msg("reversión abortada")
		return nil, aborted("reverse sale", err)
	}

	if result.AlreadyReversed {
		l.log.Info().Str("sale_id", sale.ID).Msg("venta ya revertida, sin cambios")
		return &result, nil
	}

	l.metrics.SaleReversed(result.Partial())
	if result.Partial() {
		l.log.Warn().Str("sale_id", sale.ID).Strs("skipped", result.Skipped).Msg("reversión parcial: productos inexistentes")
	} else {
		l.log.Info().Str("sale_id", sale.ID).Msg("venta revertida")
	}
	if err := l.events.SaleReversed(ctx, sale, result.Skipped); err != nil {
		l.log.Warn().Err(err).Str("sale_id", sale.ID).Msg("no se pudo publicar sale.reversed")
	}
	return &result, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Historial
// ──────────────────────────────────────────────────────────────────────────────

// DeleteSaleRecord borra solo el registro; nunca toca el stock.
func (l *SaleLedger) DeleteSaleRecord(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.ErrInvalidInput
	}
	if err := l.sales.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return aborted("delete sale", err)
	}
	l.log.Info().Str("sale_id", id).Msg("registro de venta eliminado")
	if err := l.events.SaleDeleted(ctx, id); err != nil {
		l.log.Warn().Err(err).Str("sale_id", id).Msg("no se pudo publicar sale.deleted")
	}
	return nil
}

// GetSale obtiene una venta por ID (incluidas las revertidas).
func (l *SaleLedger) GetSale(ctx context.Context, id string) (*entity.Sale, error) {
	sale, err := l.sales.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, domain.ErrNotFound
	}
	return sale, nil
}

// History ventas vigentes (no revertidas), más recientes primero.
func (l *SaleLedger) History(ctx context.Context) ([]*entity.Sale, error) {
	all, err := l.sales.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Sale, 0, len(all))
	for _, s := range all {
		if !s.IsVoided() {
			out = append(out, s)
		}
	}
	return out, nil
}

// FilterByDate filtra el historial por texto sobre la fecha con formato "2006-01-02 15:04".
func (l *SaleLedger) FilterByDate(ctx context.Context, query string) ([]*entity.Sale, error) {
	history, err := l.History(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return history, nil
	}
	out := make([]*entity.Sale, 0, len(history))
	for _, s := range history {
		if strings.Contains(strings.ToLower(s.Date.Format("2006-01-02 15:04")), q) {
			out = append(out, s)
		}
	}
	return out, nil
}

// ClearHistory borra todos los registros de ventas. No restaura stock.
func (l *SaleLedger) ClearHistory(ctx context.Context) (int, error) {
	n, err := l.sales.DeleteAll(ctx)
	if err != nil {
		return 0, aborted("clear history", err)
	}
	l.log.Warn().Int("deleted", n).Msg("historial de ventas borrado")
	return n, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

func validateSale(sale *entity.Sale) error {
	if sale == nil || strings.TrimSpace(sale.ID) == "" {
		return fmt.Errorf("%w: la venta requiere id", domain.ErrInvalidInput)
	}
	if len(sale.Items) == 0 {
		return fmt.Errorf("%w: la venta no tiene productos", domain.ErrInvalidInput)
	}
	for _, it := range sale.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return fmt.Errorf("%w: línea sin producto", domain.ErrInvalidInput)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: cantidad debe ser positiva (%s)", domain.ErrInvalidInput, it.ProductID)
		}
		if it.UnitPriceUSD.IsNegative() {
			return fmt.Errorf("%w: precio negativo (%s)", domain.ErrInvalidInput, it.ProductID)
		}
	}
	return nil
}

var errStaleReversal = errors.New("la venta cambió durante la reversión")

// sameProducts indica si ambas listas tocan exactamente los mismos productos.
func sameProducts(a, b []entity.SaleLineItem) bool {
	ids := make(map[string]bool, len(a))
	for _, it := range a {
		ids[it.ProductID] = true
	}
	seen := make(map[string]bool, len(b))
	for _, it := range b {
		if !ids[it.ProductID] {
			return false
		}
		seen[it.ProductID] = true
	}
	return len(seen) == len(ids)
}

// mergeItems agrupa líneas del mismo producto conservando el orden de aparición.
func mergeItems(items []entity.SaleLineItem) []entity.SaleLineItem {
	idx := make(map[string]int, len(items))
	out := make([]entity.SaleLineItem, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

// lockProducts lee y bloquea los productos en orden de ID para evitar interbloqueos.
func lockProducts(ctx context.Context, repo repository.StockRepository, items []entity.SaleLineItem) (map[string]*entity.Product, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	sort.Strings(ids)

	locked := make(map[string]*entity.Product, len(ids))
	for _, id := range ids {
		p, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lock product %s: %w", id, err)
		}
		locked[id] = p
	}
	return locked, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/TioCoco-api/internal/domain"
	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
	"github.com/jhoicas/TioCoco-api/internal/domain/repository"
)

var (
	_ repository.SaleRepository   = (*SaleRepo)(nil)
	_ repository.SaleTxRepository = (*SaleRepo)(nil)
)

const saleColumns = `id, sold_at, items, total_usd, exchange_rate, voided_at`

// SaleRepo ventas sobre PostgreSQL. Las líneas se guardan como JSONB (copia del producto al vender).
type SaleRepo struct {
	q Querier
}

// NewSaleRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSaleRepository(q Querier) *SaleRepo {
	return &SaleRepo{q: q}
}

// Create inserta la venta; ErrDuplicate si el ID ya existe.
func (r *SaleRepo) Create(ctx context.Context, sale *entity.Sale) error {
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	query := `
		INSERT INTO sales (id, sold_at, items, total_usd, exchange_rate)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = r.q.Exec(ctx, query, sale.ID, sale.Date, items, sale.TotalUSD, sale.ExchangeRate)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

// GetForUpdate obtiene la venta bloqueando la fila; (nil, nil) si no existe.
func (r *SaleRepo) GetForUpdate(ctx context.Context, saleID string) (*entity.Sale, error) {
	return r.get(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, saleID)
}

// GetByID obtiene la venta; (nil, nil) si no existe.
func (r *SaleRepo) GetByID(ctx context.Context, id string) (*entity.Sale, error) {
	return r.get(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
}

func (r *SaleRepo) get(ctx context.Context, query, id string) (*entity.Sale, error) {
	sale, err := scanSale(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}
	return sale, nil
}

// MarkVoided registra la reversión.
func (r *SaleRepo) MarkVoided(ctx context.Context, saleID string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE sales SET voided_at = $2 WHERE id = $1`, saleID, at)
	if err != nil {
		return fmt.Errorf("void sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List todas las ventas, más recientes primero.
func (r *SaleRepo) List(ctx context.Context) ([]*entity.Sale, error) {
	rows, err := r.q.Query(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY sold_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var list []*entity.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		list = append(list, sale)
	}
	return list, rows.Err()
}

// Delete borra el registro sin tocar stock.
func (r *SaleRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteAll vacía el historial.
func (r *SaleRepo) DeleteAll(ctx context.Context) (int, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM sales`)
	if err != nil {
		return 0, fmt.Errorf("delete sales: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanSale(row pgx.Row) (*entity.Sale, error) {
	var (
		s     entity.Sale
		items []byte
	)
	if err := row.Scan(&s.ID, &s.Date, &items, &s.TotalUSD, &s.ExchangeRate, &s.VoidedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &s.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return &s, nil
}

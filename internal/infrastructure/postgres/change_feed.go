package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
	"github.com/jhoicas/TioCoco-api/internal/domain/repository"
)

var _ repository.ProductChangeFeed = (*ChangeFeed)(nil)

// ProductChangesChannel canal NOTIFY emitido por el trigger de products.
const ProductChangesChannel = "product_changes"

// ChangeFeed suscripción LISTEN/NOTIFY a cambios de productos.
type ChangeFeed struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewChangeFeed construye el feed.
func NewChangeFeed(pool *pgxpool.Pool, log zerolog.Logger) *ChangeFeed {
	return &ChangeFeed{pool: pool, log: log}
}

// notification payload JSON de pg_notify (ver migración 0001).
type notification struct {
	Op           string          `json:"op"`
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	UnitPriceUSD decimal.Decimal `json:"unit_price_usd"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Subscribe reserva una conexión del pool para LISTEN mientras ctx esté vivo.
func (f *ChangeFeed) Subscribe(ctx context.Context) (<-chan entity.ProductChange, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+ProductChangesChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}

	out := make(chan entity.ProductChange, 64)
	go func() {
		defer close(out)
		defer conn.Release()

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					f.log.Error().Err(err).Msg("feed de productos interrumpido")
				}
				return
			}
			change, err := decodeNotification(n.Payload)
			if err != nil {
				f.log.Warn().Err(err).Str("payload", n.Payload).Msg("notificación inválida")
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func decodeNotification(payload string) (entity.ProductChange, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return entity.ProductChange{}, err
	}
	var t entity.ChangeType
	switch n.Op {
	case "INSERT":
		t = entity.ChangeAdded
	case "UPDATE":
		t = entity.ChangeModified
	case "DELETE":
		t = entity.ChangeRemoved
	default:
		return entity.ProductChange{}, fmt.Errorf("operación desconocida %q", n.Op)
	}
	at := n.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	return entity.ProductChange{
		Type: t,
		Product: entity.Product{
			ID:           n.ID,
			Name:         n.Name,
			Quantity:     n.Quantity,
			UnitPriceUSD: n.UnitPriceUSD,
			UpdatedAt:    n.UpdatedAt,
		},
		At: at,
	}, nil
}

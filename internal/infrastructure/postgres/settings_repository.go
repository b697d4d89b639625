package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/TioCoco-api/internal/domain"
	"github.com/jhoicas/TioCoco-api/internal/domain/repository"
)

var _ repository.KeyValueStore = (*SettingsRepo)(nil)

// SettingsRepo almacén clave/valor sobre la tabla settings (última tasa y su fecha).
type SettingsRepo struct {
	db Beginner
}

// NewSettingsRepository construye el adaptador.
func NewSettingsRepository(db Beginner) *SettingsRepo {
	return &SettingsRepo{db: db}
}

func (r *SettingsRepo) raw(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, true, nil
}

func (r *SettingsRepo) GetFloat(ctx context.Context, key string, def float64) (float64, error) {
	v, ok, err := r.raw(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", domain.ErrMalformedPersistedState, key, v)
	}
	return f, nil
}

func (r *SettingsRepo) GetLong(ctx context.Context, key string, def int64) (int64, error) {
	v, ok, err := r.raw(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", domain.ErrMalformedPersistedState, key, v)
	}
	return n, nil
}

func (r *SettingsRepo) Edit() repository.KeyValueEditor {
	return &settingsEditor{db: r.db}
}

type settingsEditor struct {
	db      Beginner
	keys    []string
	pending map[string]string
}

func (e *settingsEditor) put(key, value string) {
	if e.pending == nil {
		e.pending = make(map[string]string)
	}
	if _, ok := e.pending[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.pending[key] = value
}

func (e *settingsEditor) PutFloat(key string, value float64) repository.KeyValueEditor {
	e.put(key, strconv.FormatFloat(value, 'f', -1, 64))
	return e
}

func (e *settingsEditor) PutLong(key string, value int64) repository.KeyValueEditor {
	e.put(key, strconv.FormatInt(value, 10))
	return e
}

// Commit aplica todas las claves en una sola transacción.
func (e *settingsEditor) Commit(ctx context.Context) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, k := range e.keys {
		_, err := tx.Exec(ctx, `
			INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			k, e.pending[k])
		if err != nil {
			return fmt.Errorf("upsert setting %s: %w", k, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

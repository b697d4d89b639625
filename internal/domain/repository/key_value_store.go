package repository

import "context"

// KeyValueStore almacenamiento local durable (última tasa y su marca de tiempo).
// Los getters devuelven def cuando la clave no existe.
type KeyValueStore interface {
	GetFloat(ctx context.Context, key string, def float64) (float64, error)
	GetLong(ctx context.Context, key string, def int64) (int64, error)
	Edit() KeyValueEditor
}

// KeyValueEditor acumula escrituras que se aplican juntas en Commit.
type KeyValueEditor interface {
	PutFloat(key string, value float64) KeyValueEditor
	PutLong(key string, value int64) KeyValueEditor
	Commit(ctx context.Context) error
}

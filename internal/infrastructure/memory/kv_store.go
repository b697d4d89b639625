package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jhoicas/TioCoco-api/internal/domain"
	"github.com/jhoicas/TioCoco-api/internal/domain/repository"
)

// KeyValueStore implementa repository.KeyValueStore en memoria.
type KeyValueStore struct {
	mu     sync.Mutex
	values map[string]any
	fault  error
}

// NewKeyValueStore crea un almacén vacío.
func NewKeyValueStore() *KeyValueStore {
	return &KeyValueStore{values: make(map[string]any)}
}

// FailCommits hace fallar todos los Commit siguientes con err (nil lo desactiva).
func (s *KeyValueStore) FailCommits(err error) {
	s.mu.Lock()
	s.fault = err
	s.mu.Unlock()
}

// PutRaw guarda un valor sin validar tipo; permite simular estado corrupto.
func (s *KeyValueStore) PutRaw(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

func (s *KeyValueStore) GetFloat(ctx context.Context, key string, def float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return def, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s no es float", domain.ErrMalformedPersistedState, key)
	}
	return f, nil
}

func (s *KeyValueStore) GetLong(ctx context.Context, key string, def int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return def, nil
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: %s no es entero", domain.ErrMalformedPersistedState, key)
	}
	return n, nil
}

func (s *KeyValueStore) Edit() repository.KeyValueEditor {
	return &kvEditor{s: s, pending: make(map[string]any)}
}

type kvEditor struct {
	s       *KeyValueStore
	pending map[string]any
}

func (e *kvEditor) PutFloat(key string, value float64) repository.KeyValueEditor {
	e.pending[key] = value
	return e
}

func (e *kvEditor) PutLong(key string, value int64) repository.KeyValueEditor {
	e.pending[key] = value
	return e
}

func (e *kvEditor) Commit(ctx context.Context) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if e.s.fault != nil {
		return e.s.fault
	}
	for k, v := range e.pending {
		e.s.values[k] = v
	}
	return nil
}

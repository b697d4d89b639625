package rate

import (
	"context"

	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
)

// Source fuente remota de la tasa (API JSON, scraper, ...). Se consultan en orden.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (float64, error)
}

// ConnectivityChecker indica si hay red antes de intentar las fuentes.
type ConnectivityChecker interface {
	Online(ctx context.Context) bool
}

// Recorder métricas del caché. Implementación opcional.
type Recorder interface {
	ObserveOutcome(origin entity.RateOrigin, reason entity.RateReason)
	SourceFailed(source string)
	PersistFailed()
	SetRate(value float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOutcome(entity.RateOrigin, entity.RateReason) {}
func (nopRecorder) SourceFailed(string)                                 {}
func (nopRecorder) PersistFailed()                                      {}
func (nopRecorder) SetRate(float64)                                     {}

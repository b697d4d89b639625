package background

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
)

// Outcome resultado de una ejecución del disparador.
type Outcome string

const (
	OutcomeRefreshed        Outcome = "refreshed"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeDegraded         Outcome = "degraded"
	OutcomeRetryScheduled   Outcome = "retry_scheduled"
	OutcomeRetriesExhausted Outcome = "retries_exhausted"
	OutcomeFailed           Outcome = "failed"
)

// RateRefresher lo implementa rate.RateCache.
type RateRefresher interface {
	GetRate(ctx context.Context, forceUpdate bool) (entity.Rate, error)
}

// Precondition condición para ejecutar; devuelve false y el motivo si no se cumple.
type Precondition func(ctx context.Context) (bool, string)

// Online precondición de red disponible.
func Online(checker interface{ Online(context.Context) bool }) Precondition {
	return func(ctx context.Context) (bool, string) {
		if checker.Online(ctx) {
			return true, ""
		}
		return false, "sin red"
	}
}

// TriggerRecorder métricas opcionales del disparador.
type TriggerRecorder interface {
	TriggerRun(outcome string)
}

// TriggerConfig intervalos del disparador.
type TriggerConfig struct {
	Interval   time.Duration
	RetryBase  time.Duration
	RetryMax   time.Duration
	MaxRetries int
}

// RateTrigger refresca la tasa periódicamente; si las fuentes fallan agenda un reintento
// con espera lineal (RetryBase × intento, tope RetryMax) hasta MaxRetries.
type RateTrigger struct {
	cfg           TriggerConfig
	refresher     RateRefresher
	preconditions []Precondition
	log           zerolog.Logger
	rec           TriggerRecorder

	mu        sync.Mutex
	attempt   int
	nextRetry time.Duration // 0 si no hay reintento pendiente
}

// NewRateTrigger construye el disparador. rec puede ser nil.
func NewRateTrigger(cfg TriggerConfig, refresher RateRefresher, log zerolog.Logger, rec TriggerRecorder, preconditions ...Precondition) *RateTrigger {
	return &RateTrigger{
		cfg:           cfg,
		refresher:     refresher,
		preconditions: preconditions,
		log:           log,
		rec:           rec,
	}
}

// Run ejecuta el ciclo hasta que ctx termine.
func (t *RateTrigger) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	var (
		retry   *time.Timer
		retryCh <-chan time.Time
	)
	stopRetry := func() {
		if retry != nil {
			retry.Stop()
			retry, retryCh = nil, nil
		}
	}
	defer stopRetry()

	handle := func() {
		outcome := t.RunOnce(ctx)
		stopRetry()
		if outcome == OutcomeRetryScheduled {
			retry = time.NewTimer(t.PendingRetry())
			retryCh = retry.C
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			handle()
		case <-retryCh:
			retry, retryCh = nil, nil
			handle()
		}
	}
}

// RunOnce evalúa las precondiciones y fuerza una actualización.
func (t *RateTrigger) RunOnce(ctx context.Context) Outcome {
	outcome := t.runOnce(ctx)
	if t.rec != nil {
		t.rec.TriggerRun(string(outcome))
	}
	return outcome
}

func (t *RateTrigger) runOnce(ctx context.Context) Outcome {
	for _, check := range t.preconditions {
		if ok, reason := check(ctx); !ok {
			t.log.Info().Str("reason", reason).Msg("actualización de tasa omitida")
			return OutcomeSkipped
		}
	}

	r, err := t.refresher.GetRate(ctx, true)
	if err != nil {
		t.log.Error().Err(err).Msg("actualización de tasa falló")
		return OutcomeFailed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case r.IsLive():
		t.attempt = 0
		t.nextRetry = 0
		return OutcomeRefreshed
	case r.Reason == entity.RateReasonAcquisitionFailed:
		t.attempt++
		if t.attempt > t.cfg.MaxRetries {
			t.log.Warn().Int("attempts", t.attempt-1).Msg("reintentos de tasa agotados")
			t.attempt = 0
			t.nextRetry = 0
			return OutcomeRetriesExhausted
		}
		t.nextRetry = t.backoff(t.attempt)
		t.log.Warn().Int("attempt", t.attempt).Dur("retry_in", t.nextRetry).Msg("fuentes de tasa caídas, reintento agendado")
		return OutcomeRetryScheduled
	default:
		t.nextRetry = 0
		t.log.Info().Str("reason", string(r.Reason)).Msg("tasa sin actualizar")
		return OutcomeDegraded
	}
}

// PendingRetry espera del reintento agendado (0 si no hay).
func (t *RateTrigger) PendingRetry() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextRetry
}

func (t *RateTrigger) backoff(attempt int) time.Duration {
	d := t.cfg.RetryBase * time.Duration(attempt)
	if t.cfg.RetryMax > 0 && d > t.cfg.RetryMax {
		return t.cfg.RetryMax
	}
	return d
}

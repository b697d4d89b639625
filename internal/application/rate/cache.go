package rate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/TioCoco-api/internal/domain"
	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
	"github.com/jhoicas/TioCoco-api/internal/domain/repository"
)

// Claves en el almacén local.
const (
	KeyLastRate   = "last_rate"
	KeyLastUpdate = "last_update" // epoch en milisegundos
)

const flightKey = "rate"

// Config parámetros del caché.
type Config struct {
	CacheDuration time.Duration
	MinimumRate   float64 // valores <= MinimumRate son fallos de adquisición
	DefaultRate   float64 // tasa segura cuando no hay nada persistido
	FetchTimeout  time.Duration // por paso: sondeo de red y cada fuente por separado
}

// Condition último resultado degradado registrado (sin red o fuentes caídas).
// Err es domain.ErrNoConnectivity o domain.ErrAcquisitionFailed.
type Condition struct {
	Reason entity.RateReason
	Err    error
	At     time.Time
}

// Option configura dependencias opcionales.
type Option func(*RateCache)

// WithClock reemplaza time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(c *RateCache) { c.now = now }
}

// WithRecorder registra métricas de cada resultado.
func WithRecorder(r Recorder) Option {
	return func(c *RateCache) {
		if r != nil {
			c.rec = r
		}
	}
}

// RateCache mantiene la tasa USD -> Bs. vigente.
// Nunca hay más de una adquisición remota en curso; los demás llamadores reciben la tasa actual.
type RateCache struct {
	cfg     Config
	store   repository.KeyValueStore
	sources []Source
	checker ConnectivityChecker
	log     zerolog.Logger
	rec     Recorder
	now     func() time.Time

	inFlight atomic.Bool
	group    singleflight.Group

	mu             sync.Mutex
	initialized    bool
	current        entity.Rate
	lastAcquiredAt time.Time
	lastCondition  Condition
}

// NewRateCache crea el caché. Debe llamarse Initialize antes de GetRate.
func NewRateCache(cfg Config, store repository.KeyValueStore, sources []Source, checker ConnectivityChecker, log zerolog.Logger, opts ...Option) *RateCache {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	c := &RateCache{
		cfg:     cfg,
		store:   store,
		sources: sources,
		checker: checker,
		log:     log,
		rec:     nopRecorder{},
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Initialize carga la última tasa persistida. Solo puede ejecutarse una vez.
func (c *RateCache) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return domain.ErrAlreadyInitialized
	}

	value, err := c.store.GetFloat(ctx, KeyLastRate, c.cfg.DefaultRate)
	if err != nil {
		return fmt.Errorf("load %s: %w", KeyLastRate, err)
	}
	if !c.valid(value) {
		return fmt.Errorf("%w: %s=%v", domain.ErrMalformedPersistedState, KeyLastRate, value)
	}

	millis, err := c.store.GetLong(ctx, KeyLastUpdate, 0)
	if err != nil {
		return fmt.Errorf("load %s: %w", KeyLastUpdate, err)
	}
	if millis < 0 {
		return fmt.Errorf("%w: %s=%d", domain.ErrMalformedPersistedState, KeyLastUpdate, millis)
	}

	var acquiredAt time.Time
	if millis > 0 {
		acquiredAt = time.UnixMilli(millis)
	}
	c.current = entity.Rate{Value: value, AcquiredAt: acquiredAt, Origin: entity.RateOriginCached}
	c.lastAcquiredAt = acquiredAt
	c.initialized = true
	c.rec.SetRate(value)

	c.log.Info().Float64("rate", value).Time("acquired_at", acquiredAt).Msg("tasa cargada")
	return nil
}

// GetRate devuelve la tasa vigente, consultando la red si la ventana de caché venció o si forceUpdate.
// Los resultados degradados se devuelven como tasa en caché con su motivo, no como error.
// Solo devuelve error si el caché no está inicializado o si ctx termina mientras espera.
func (c *RateCache) GetRate(ctx context.Context, forceUpdate bool) (entity.Rate, error) {
	if c.inFlight.Load() {
		return c.cachedIfInitialized(entity.RateReasonRefreshInFlight)
	}

	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return entity.Rate{}, domain.ErrNotInitialized
	}
	if c.inFlight.Load() {
		r := c.current.Cached(entity.RateReasonRefreshInFlight)
		c.mu.Unlock()
		c.rec.ObserveOutcome(r.Origin, r.Reason)
		return r, nil
	}
	if !forceUpdate && c.freshLocked() {
		r := c.current.Cached(entity.RateReasonWithinCacheWindow)
		c.mu.Unlock()
		c.rec.ObserveOutcome(r.Origin, r.Reason)
		return r, nil
	}
	c.inFlight.Store(true)
	c.mu.Unlock()

	// La adquisición no depende del ctx del llamador: si este cancela, la consulta sigue.
	ch := c.group.DoChan(flightKey, func() (any, error) {
		defer func() {
			// Forget antes de bajar la bandera: el siguiente vuelo no puede unirse a este.
			c.group.Forget(flightKey)
			c.inFlight.Store(false)
		}()
		return c.acquire(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		r := res.Val.(entity.Rate)
		c.rec.ObserveOutcome(r.Origin, r.Reason)
		return r, nil
	case <-ctx.Done():
		return c.Current().Cached(entity.RateReasonRefreshInFlight), ctx.Err()
	}
}

func (c *RateCache) cachedIfInitialized(reason entity.RateReason) (entity.Rate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return entity.Rate{}, domain.ErrNotInitialized
	}
	r := c.current.Cached(reason)
	c.rec.ObserveOutcome(r.Origin, r.Reason)
	return r, nil
}

// acquire consulta las fuentes en orden. Corre con la bandera inFlight activa.
// Cada paso tiene su propio FetchTimeout.
func (c *RateCache) acquire(ctx context.Context) entity.Rate {
	if !c.online(ctx) {
		c.log.Warn().Msg("sin conexión, se mantiene la tasa en caché")
		return c.degrade(entity.RateReasonNoConnectivity, domain.ErrNoConnectivity)
	}

	for _, src := range c.sources {
		value, err := c.fetch(ctx, src)
		if err != nil {
			c.rec.SourceFailed(src.Name())
			c.log.Warn().Err(err).Str("source", src.Name()).Msg("fuente de tasa falló")
			continue
		}
		if !c.valid(value) {
			c.rec.SourceFailed(src.Name())
			c.log.Warn().Float64("value", value).Str("source", src.Name()).Msg("tasa descartada por debajo del mínimo")
			continue
		}
		return c.accept(ctx, src.Name(), value)
	}

	c.log.Warn().Err(domain.ErrAcquisitionFailed).Msg("todas las fuentes fallaron")
	return c.degrade(entity.RateReasonAcquisitionFailed, domain.ErrAcquisitionFailed)
}

func (c *RateCache) online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()
	return c.checker.Online(ctx)
}

func (c *RateCache) fetch(ctx context.Context, src Source) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()
	return src.Fetch(ctx)
}

func (c *RateCache) accept(ctx context.Context, source string, value float64) entity.Rate {
	now := c.now()
	live := entity.Rate{Value: value, AcquiredAt: now, Origin: entity.RateOriginLive}

	c.mu.Lock()
	c.current = live
	c.lastAcquiredAt = now
	c.lastCondition = Condition{}
	c.mu.Unlock()
	c.rec.SetRate(value)

	pctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()
	err := c.store.Edit().
		PutFloat(KeyLastRate, value).
		PutLong(KeyLastUpdate, now.UnixMilli()).
		Commit(pctx)
	if err != nil {
		c.rec.PersistFailed()
		c.log.Error().Err(err).Msg("no se pudo persistir la tasa")
	}

	c.log.Info().Float64("rate", value).Str("source", source).Msg("tasa actualizada")
	return live
}

func (c *RateCache) degrade(reason entity.RateReason, err error) entity.Rate {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCondition = Condition{Reason: reason, Err: err, At: c.now()}
	return c.current.Cached(reason)
}

// Current copia de la tasa actual sin tocar la red.
func (c *RateCache) Current() entity.Rate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.freshLocked() {
		return c.current.Cached(entity.RateReasonWithinCacheWindow)
	}
	return c.current.Cached(c.lastCondition.Reason)
}

// LastCondition resultado degradado vigente; vacío si nunca hubo uno o si la última adquisición fue exitosa.
func (c *RateCache) LastCondition() Condition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCondition
}

func (c *RateCache) freshLocked() bool {
	return !c.lastAcquiredAt.IsZero() && c.now().Sub(c.lastAcquiredAt) < c.cfg.CacheDuration
}

func (c *RateCache) valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > c.cfg.MinimumRate
}

// IsMalformed indica si err proviene de un estado persistido corrupto.
func IsMalformed(err error) bool {
	return errors.Is(err, domain.ErrMalformedPersistedState)
}

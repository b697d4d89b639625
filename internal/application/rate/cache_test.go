package rate_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/TioCoco-api/internal/application/rate"
	"github.com/jhoicas/TioCoco-api/internal/domain"
	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
	"github.com/jhoicas/TioCoco-api/internal/infrastructure/memory"
	"github.com/jhoicas/TioCoco-api/internal/infrastructure/netcheck"
	"github.com/jhoicas/TioCoco-api/internal/infrastructure/ratesource"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dobles de prueba
// ──────────────────────────────────────────────────────────────────────────────

type fakeSource struct {
	name    string
	value   float64
	err     error
	calls   atomic.Int32
	started chan struct{} // si no es nil, se señala al entrar a Fetch
	release chan struct{} // si no es nil, Fetch espera a que se cierre
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Fetch(ctx context.Context) (float64, error) {
	s.calls.Add(1)
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	return s.value, s.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testCfg = rate.Config{
	CacheDuration: 30 * time.Minute,
	MinimumRate:   1,
	DefaultRate:   36.0,
	FetchTimeout:  5 * time.Second,
}

func newCache(t *testing.T, kv *memory.KeyValueStore, online bool, clk *clock, sources ...rate.Source) *rate.RateCache {
	t.Helper()
	c := rate.NewRateCache(testCfg, kv, sources, netcheck.NewStatic(online), zerolog.Nop(), rate.WithClock(clk.Now))
	require.NoError(t, c.Initialize(context.Background()))
	return c
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

// ──────────────────────────────────────────────────────────────────────────────
// Inicialización
// ──────────────────────────────────────────────────────────────────────────────

func TestRateCache_SinEstadoYSinRed_DevuelveDefault(t *testing.T) {
	src := &fakeSource{name: "primary", value: 40}
	c := newCache(t, memory.NewKeyValueStore(), false, newClock(), src)

	r, err := c.GetRate(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, 36.0, r.Value)
	assert.Equal(t, entity.RateOriginCached, r.Origin)
	assert.Equal(t, entity.RateReasonNoConnectivity, r.Reason)
	assert.Zero(t, src.calls.Load(), "sin red no se consultan las fuentes")
	assert.Equal(t, entity.RateReasonNoConnectivity, c.LastCondition().Reason)
	assert.ErrorIs(t, c.LastCondition().Err, domain.ErrNoConnectivity)
}

func TestRateCache_NoInicializado(t *testing.T) {
	c := rate.NewRateCache(testCfg, memory.NewKeyValueStore(), nil, netcheck.NewStatic(true), zerolog.Nop())

	_, err := c.GetRate(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestRateCache_InicializarDosVeces(t *testing.T) {
	c := newCache(t, memory.NewKeyValueStore(), true, newClock())
	assert.ErrorIs(t, c.Initialize(context.Background()), domain.ErrAlreadyInitialized)
}

func TestRateCache_EstadoPersistidoCorrupto(t *testing.T) {
	cases := map[string]func(kv *memory.KeyValueStore){
		"tasa bajo el mínimo": func(kv *memory.KeyValueStore) { kv.PutRaw(rate.KeyLastRate, 0.5) },
		"tasa NaN":            func(kv *memory.KeyValueStore) { kv.PutRaw(rate.KeyLastRate, math.NaN()) },
		"tipo incorrecto":     func(kv *memory.KeyValueStore) { kv.PutRaw(rate.KeyLastRate, "36") },
		"timestamp negativo": func(kv *memory.KeyValueStore) {
			kv.PutRaw(rate.KeyLastRate, 40.0)
			kv.PutRaw(rate.KeyLastUpdate, int64(-1))
		},
	}
	for name, prepare := range cases {
		t.Run(name, func(t *testing.T) {
			kv := memory.NewKeyValueStore()
			prepare(kv)
			c := rate.NewRateCache(testCfg, kv, nil, netcheck.NewStatic(true), zerolog.Nop())

			err := c.Initialize(context.Background())
			assert.ErrorIs(t, err, domain.ErrMalformedPersistedState)
			assert.True(t, rate.IsMalformed(err))
		})
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Adquisición
// ──────────────────────────────────────────────────────────────────────────────

func TestRateCache_PrimariaFallaUsaRespaldo(t *testing.T) {
	kv := memory.NewKeyValueStore()
	clk := newClock()
	primary := &fakeSource{name: "primary", err: errors.New("timeout")}
	fallback := &fakeSource{name: "fallback", value: 185.5}
	c := newCache(t, kv, true, clk, primary, fallback)

	r, err := c.GetRate(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, 185.5, r.Value)
	assert.True(t, r.IsLive())
	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, int32(1), fallback.calls.Load())

	stored, _ := kv.GetFloat(context.Background(), rate.KeyLastRate, 0)
	ts, _ := kv.GetLong(context.Background(), rate.KeyLastUpdate, 0)
	assert.Equal(t, 185.5, stored)
	assert.Equal(t, clk.Now().UnixMilli(), ts)
}

func TestRateCache_ValorBajoMinimoSeDescarta(t *testing.T) {
	primary := &fakeSource{name: "primary", value: 0.5}
	fallback := &fakeSource{name: "fallback", value: 37.2}
	c := newCache(t, memory.NewKeyValueStore(), true, newClock(), primary, fallback)

	r, err := c.GetRate(context.Background(), true)

	require.NoError(t, err)
	assert.Equal(t, 37.2, r.Value)
	assert.True(t, r.IsLive())
}

func TestRateCache_TodasFallan(t *testing.T) {
	kv := memory.NewKeyValueStore()
	kv.PutRaw(rate.KeyLastRate, 40.0)
	primary := &fakeSource{name: "primary", err: errors.New("503")}
	fallback := &fakeSource{name: "fallback", value: -3}
	c := newCache(t, kv, true, newClock(), primary, fallback)

	r, err := c.GetRate(context.Background(), true)

	require.NoError(t, err)
	assert.Equal(t, 40.0, r.Value)
	assert.Equal(t, entity.RateReasonAcquisitionFailed, r.Reason)
	assert.True(t, r.IsStale())
	assert.Equal(t, entity.RateReasonAcquisitionFailed, c.LastCondition().Reason)
	assert.ErrorIs(t, c.LastCondition().Err, domain.ErrAcquisitionFailed)
}

func TestRateCache_PrimariaColgadaNoAgotaElPlazoDelRespaldo(t *testing.T) {
	hanging := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(hanging.Close)
	bcv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><div id="dolar"><div class="centrado"><strong> 185,50 </strong></div></div></body></html>`))
	}))
	t.Cleanup(bcv.Close)

	// Cliente compartido sin timeout propio: el plazo lo pone el caché en cada fuente.
	client := &http.Client{}
	cfg := testCfg
	cfg.FetchTimeout = 300 * time.Millisecond
	c := rate.NewRateCache(cfg, memory.NewKeyValueStore(), []rate.Source{
		ratesource.NewDolarAPISource(hanging.URL, client, cfg.FetchTimeout),
		ratesource.NewBCVScraperSource(bcv.URL, client, cfg.FetchTimeout),
	}, netcheck.NewStatic(true), zerolog.Nop())
	require.NoError(t, c.Initialize(context.Background()))

	r, err := c.GetRate(context.Background(), true)

	require.NoError(t, err)
	assert.True(t, r.IsLive(), "reason=%s", r.Reason)
	assert.InDelta(t, 185.5, r.Value, 1e-9)
}

func TestRateCache_ExitoLimpiaCondicionDegradada(t *testing.T) {
	clk := newClock()
	src := &fakeSource{name: "primary", err: errors.New("503")}
	c := newCache(t, memory.NewKeyValueStore(), true, clk, src)

	r, err := c.GetRate(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, entity.RateReasonAcquisitionFailed, r.Reason)

	src.err, src.value = nil, 41
	r, err = c.GetRate(context.Background(), true)
	require.NoError(t, err)
	require.True(t, r.IsLive())
	assert.Zero(t, c.LastCondition())

	// Fuera de la ventana la tasa ya no se informa como degradada.
	clk.Advance(31 * time.Minute)
	cur := c.Current()
	assert.Equal(t, 41.0, cur.Value)
	assert.Equal(t, entity.RateReasonNone, cur.Reason)
	assert.False(t, cur.IsStale())
}

func TestRateCache_VentanaDeCache(t *testing.T) {
	clk := newClock()
	src := &fakeSource{name: "primary", value: 38}
	c := newCache(t, memory.NewKeyValueStore(), true, clk, src)

	_, err := c.GetRate(context.Background(), false)
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	r, err := c.GetRate(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, entity.RateReasonWithinCacheWindow, r.Reason)
	assert.Equal(t, 38.0, r.Value)
	assert.Equal(t, int32(1), src.calls.Load())

	// Forzar ignora la ventana.
	_, err = c.GetRate(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())

	// Vencida la ventana se vuelve a consultar.
	clk.Advance(31 * time.Minute)
	r, err = c.GetRate(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, r.IsLive())
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestRateCache_UnaSolaAdquisicionConcurrente(t *testing.T) {
	src := &fakeSource{name: "primary", value: 42, started: make(chan struct{}), release: make(chan struct{})}
	c := newCache(t, memory.NewKeyValueStore(), true, newClock(), src)

	first := make(chan entity.Rate, 1)
	go func() {
		r, _ := c.GetRate(context.Background(), true)
		first <- r
	}()
	<-src.started

	const callers = 20
	var wg sync.WaitGroup
	results := make([]entity.Rate, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.GetRate(context.Background(), true)
		}(i)
	}
	wg.Wait()
	close(src.release)

	r := <-first
	assert.True(t, r.IsLive())
	assert.Equal(t, 42.0, r.Value)
	assert.Equal(t, int32(1), src.calls.Load())
	for _, res := range results {
		assert.Equal(t, entity.RateReasonRefreshInFlight, res.Reason)
		assert.Equal(t, 36.0, res.Value)
	}
}

func TestRateCache_BanderaEnCursoSiempreSeLibera(t *testing.T) {
	src := &fakeSource{name: "primary", value: 42}
	c := newCache(t, memory.NewKeyValueStore(), true, newClock(), src)

	// Vuelos que terminan mientras otros llamadores intentan arrancar el siguiente.
	const workers, rounds = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_, _ = c.GetRate(context.Background(), true)
			}
		}()
	}
	wg.Wait()

	before := src.calls.Load()
	r, err := c.GetRate(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, r.IsLive(), "reason=%s", r.Reason)
	assert.Equal(t, before+1, src.calls.Load(), "sin vuelo en curso la llamada forzada consulta la fuente")
}

func TestRateCache_CancelacionNoInterrumpeAdquisicion(t *testing.T) {
	src := &fakeSource{name: "primary", value: 50, started: make(chan struct{}), release: make(chan struct{})}
	c := newCache(t, memory.NewKeyValueStore(), true, newClock(), src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetRate(ctx, true)
		done <- err
	}()
	<-src.started
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	close(src.release)

	assert.Eventually(t, func() bool {
		return c.Current().Value == 50
	}, time.Second, 5*time.Millisecond)
}

func TestRateCache_FalloAlPersistirNoAfectaResultado(t *testing.T) {
	kv := memory.NewKeyValueStore()
	src := &fakeSource{name: "primary", value: 39}
	c := newCache(t, kv, true, newClock(), src)
	kv.FailCommits(errors.New("readonly"))

	r, err := c.GetRate(context.Background(), true)

	require.NoError(t, err)
	assert.True(t, r.IsLive())
	assert.Equal(t, 39.0, c.Current().Value)
}

package background_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/TioCoco-api/internal/app/background"
	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
	"github.com/jhoicas/TioCoco-api/internal/infrastructure/memory"
	"github.com/jhoicas/TioCoco-api/internal/infrastructure/netcheck"
)

type scriptedRefresher struct {
	mu      sync.Mutex
	results []entity.Rate
	calls   int
}

func (r *scriptedRefresher) GetRate(context.Context, bool) (entity.Rate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.results[min(r.calls, len(r.results)-1)]
	r.calls++
	return res, nil
}

func (r *scriptedRefresher) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

var (
	live   = entity.Rate{Value: 40, Origin: entity.RateOriginLive}
	failed = entity.Rate{Value: 36, Origin: entity.RateOriginCached, Reason: entity.RateReasonAcquisitionFailed}
)

var triggerCfg = background.TriggerConfig{
	Interval:   time.Hour,
	RetryBase:  time.Hour,
	RetryMax:   150 * time.Minute,
	MaxRetries: 3,
}

func TestRateTrigger_BackoffLinealConTope(t *testing.T) {
	ref := &scriptedRefresher{results: []entity.Rate{failed}}
	trg := background.NewRateTrigger(triggerCfg, ref, zerolog.Nop(), nil)

	want := []time.Duration{time.Hour, 2 * time.Hour, 150 * time.Minute}
	for i, d := range want {
		assert.Equal(t, background.OutcomeRetryScheduled, trg.RunOnce(context.Background()), "intento %d", i+1)
		assert.Equal(t, d, trg.PendingRetry())
	}

	assert.Equal(t, background.OutcomeRetriesExhausted, trg.RunOnce(context.Background()))
	assert.Zero(t, trg.PendingRetry())
}

func TestRateTrigger_ExitoReiniciaIntentos(t *testing.T) {
	ref := &scriptedRefresher{results: []entity.Rate{failed, failed, live, failed}}
	trg := background.NewRateTrigger(triggerCfg, ref, zerolog.Nop(), nil)

	trg.RunOnce(context.Background())
	trg.RunOnce(context.Background())
	assert.Equal(t, background.OutcomeRefreshed, trg.RunOnce(context.Background()))
	assert.Zero(t, trg.PendingRetry())

	assert.Equal(t, background.OutcomeRetryScheduled, trg.RunOnce(context.Background()))
	assert.Equal(t, time.Hour, trg.PendingRetry(), "el contador vuelve a 1")
}

func TestRateTrigger_SinRedSeOmite(t *testing.T) {
	ref := &scriptedRefresher{results: []entity.Rate{live}}
	trg := background.NewRateTrigger(triggerCfg, ref, zerolog.Nop(), nil, background.Online(netcheck.NewStatic(false)))

	assert.Equal(t, background.OutcomeSkipped, trg.RunOnce(context.Background()))
	assert.Zero(t, ref.Calls())
}

func TestRateTrigger_SinConexionEsDegradado(t *testing.T) {
	offline := entity.Rate{Value: 36, Origin: entity.RateOriginCached, Reason: entity.RateReasonNoConnectivity}
	ref := &scriptedRefresher{results: []entity.Rate{offline}}
	trg := background.NewRateTrigger(triggerCfg, ref, zerolog.Nop(), nil)

	assert.Equal(t, background.OutcomeDegraded, trg.RunOnce(context.Background()))
	assert.Zero(t, trg.PendingRetry())
}

func TestRateTrigger_RunEjecutaEnCadaTick(t *testing.T) {
	ref := &scriptedRefresher{results: []entity.Rate{live}}
	cfg := triggerCfg
	cfg.Interval = 10 * time.Millisecond
	trg := background.NewRateTrigger(cfg, ref, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		trg.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return ref.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestBackgroundTasks_ReenviaCambios(t *testing.T) {
	store := memory.NewStore()
	sink := &captureSink{}
	tasks := background.NewBackgroundTasks(nil, store.ChangeFeed(), sink, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tasks.StartAll(ctx) }()

	// La suscripción es asíncrona: se reintenta la alta hasta que llegue un evento.
	n := 0
	assert.Eventually(t, func() bool {
		n++
		_ = store.Products().Create(context.Background(), &entity.Product{ID: fmt.Sprintf("P%d", n), Name: "Pan", Quantity: 1})
		return sink.Len() > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

// flakyFeed entrega un cambio por suscripción y cierra el canal, como una conexión LISTEN caída.
// La primera suscripción falla.
type flakyFeed struct {
	mu    sync.Mutex
	calls int
}

func (f *flakyFeed) Subscribe(ctx context.Context) (<-chan entity.ProductChange, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if n == 1 {
		return nil, errors.New("connection refused")
	}
	ch := make(chan entity.ProductChange, 1)
	ch <- entity.ProductChange{Type: entity.ChangeModified, Product: entity.Product{ID: fmt.Sprintf("P%d", n)}}
	close(ch)
	return ch, nil
}

func (f *flakyFeed) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestBackgroundTasks_ResuscribeTrasCaidaDelFeed(t *testing.T) {
	feed := &flakyFeed{}
	sink := &captureSink{}
	tasks := background.NewBackgroundTasks(nil, feed, sink, zerolog.Nop())
	tasks.ResubscribeBase = time.Millisecond
	tasks.ResubscribeMax = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tasks.StartAll(ctx) }()

	assert.Eventually(t, func() bool { return sink.Len() >= 3 }, time.Second, 5*time.Millisecond,
		"cada caída del feed debe terminar en una nueva suscripción")
	assert.GreaterOrEqual(t, feed.Calls(), 4)

	cancel()
	require.NoError(t, <-done)
}

type captureSink struct {
	mu      sync.Mutex
	changes []entity.ProductChange
}

func (s *captureSink) ProductChanged(_ context.Context, c entity.ProductChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, c)
	return nil
}

func (s *captureSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.changes)
}

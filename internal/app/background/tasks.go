package background

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
	"github.com/jhoicas/TioCoco-api/internal/domain/repository"
)

// ChangeSink destino de los cambios de productos (publicador de eventos).
type ChangeSink interface {
	ProductChanged(ctx context.Context, change entity.ProductChange) error
}

// Espera entre resuscripciones al feed de productos.
const (
	DefaultResubscribeBase = time.Second
	DefaultResubscribeMax  = time.Minute
)

// BackgroundTasks tareas de fondo de la aplicación.
type BackgroundTasks struct {
	Trigger *RateTrigger
	Feed    repository.ProductChangeFeed
	Sink    ChangeSink
	Log     zerolog.Logger

	// ResubscribeBase y ResubscribeMax acotan el backoff exponencial tras una caída del feed.
	ResubscribeBase time.Duration
	ResubscribeMax  time.Duration
}

// NewBackgroundTasks construye las tareas. feed y sink pueden ser nil.
func NewBackgroundTasks(trigger *RateTrigger, feed repository.ProductChangeFeed, sink ChangeSink, log zerolog.Logger) *BackgroundTasks {
	return &BackgroundTasks{
		Trigger:         trigger,
		Feed:            feed,
		Sink:            sink,
		Log:             log,
		ResubscribeBase: DefaultResubscribeBase,
		ResubscribeMax:  DefaultResubscribeMax,
	}
}

// StartAll corre todas las tareas hasta que ctx termine.
func (bt *BackgroundTasks) StartAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if bt.Trigger != nil {
		g.Go(func() error {
			bt.Trigger.Run(ctx)
			return nil
		})
	}
	if bt.Feed != nil && bt.Sink != nil {
		g.Go(func() error {
			return bt.forwardProductChanges(ctx)
		})
	}
	return g.Wait()
}

// forwardProductChanges reenvía cambios al sink y se vuelve a suscribir cada vez que el feed se corta.
func (bt *BackgroundTasks) forwardProductChanges(ctx context.Context) error {
	base, maxWait := bt.ResubscribeBase, bt.ResubscribeMax
	if base <= 0 {
		base = DefaultResubscribeBase
	}
	if maxWait < base {
		maxWait = max(base, DefaultResubscribeMax)
	}
	wait := base
	for {
		changes, err := bt.Feed.Subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			bt.Log.Error().Err(err).Dur("retry_in", wait).Msg("no se pudo suscribir al feed de productos")
		} else {
			wait = base
			bt.drain(ctx, changes)
			if ctx.Err() != nil {
				return nil
			}
			bt.Log.Warn().Dur("retry_in", wait).Msg("feed de productos cerrado, resuscribiendo")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		wait = min(wait*2, maxWait)
	}
}

func (bt *BackgroundTasks) drain(ctx context.Context, changes <-chan entity.ProductChange) {
	for change := range changes {
		if err := bt.Sink.ProductChanged(ctx, change); err != nil {
			bt.Log.Warn().Err(err).Str("product_id", change.Product.ID).Msg("no se pudo reenviar cambio de producto")
			continue
		}
		bt.Log.Debug().Str("type", string(change.Type)).Str("product_id", change.Product.ID).Msg("cambio de producto reenviado")
	}
}

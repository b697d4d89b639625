package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
)

const feedBuffer = 64

type changeFeed struct {
	mu   sync.Mutex
	subs map[chan entity.ProductChange]struct{}
}

func newChangeFeed() *changeFeed {
	return &changeFeed{subs: make(map[chan entity.ProductChange]struct{})}
}

// publish no bloquea: si un suscriptor está lleno, el cambio se descarta para él.
func (f *changeFeed) publish(t entity.ChangeType, p *entity.Product, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	change := entity.ProductChange{Type: t, Product: *p, At: at}
	for ch := range f.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

// ChangeFeed implementa repository.ProductChangeFeed en memoria.
type ChangeFeed struct {
	s *Store
}

func (c *ChangeFeed) Subscribe(ctx context.Context) (<-chan entity.ProductChange, error) {
	ch := make(chan entity.ProductChange, feedBuffer)
	f := c.s.feed

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, ch)
		close(ch)
		f.mu.Unlock()
	}()
	return ch, nil
}

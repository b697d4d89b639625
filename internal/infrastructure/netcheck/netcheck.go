package netcheck

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

// DialChecker considera que hay conexión si alguna dirección de prueba acepta TCP.
type DialChecker struct {
	addrs   []string
	timeout time.Duration
	dialer  net.Dialer
}

// NewDialChecker crea el verificador; timeout por intento (2s si es <= 0).
func NewDialChecker(addrs []string, timeout time.Duration) *DialChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DialChecker{addrs: addrs, timeout: timeout}
}

// Online intenta las direcciones en orden y devuelve true con la primera que conecte.
func (c *DialChecker) Online(ctx context.Context) bool {
	for _, addr := range c.addrs {
		dctx, cancel := context.WithTimeout(ctx, c.timeout)
		conn, err := c.dialer.DialContext(dctx, "tcp", addr)
		cancel()
		if err == nil {
			_ = conn.Close()
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// Static verificador de valor fijo, conmutable en caliente (modo offline y tests).
type Static struct {
	online atomic.Bool
}

// NewStatic crea un verificador con el estado indicado.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

func (s *Static) Online(context.Context) bool { return s.online.Load() }

// Set cambia el estado reportado.
func (s *Static) Set(online bool) { s.online.Store(online) }

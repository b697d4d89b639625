package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
)

// Metrics métricas de la tasa de cambio y del libro de ventas.
// Implementa rate.Recorder y sales.Metrics.
type Metrics struct {
	RateOutcomesTotal   *prometheus.CounterVec
	RateSourceFailures  *prometheus.CounterVec
	RatePersistFailures prometheus.Counter
	RateValue           prometheus.Gauge

	SalesCommittedTotal *prometheus.CounterVec
	SalesRejectedTotal  *prometheus.CounterVec
	SalesReversedTotal  *prometheus.CounterVec

	RateTriggerRuns *prometheus.CounterVec
}

// New registra las métricas en reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RateOutcomesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_requests_total",
				Help: "Solicitudes de tasa por origen y motivo",
			},
			[]string{"origin", "reason"},
		),
		RateSourceFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_source_failures_total",
				Help: "Fallos por fuente remota de tasa",
			},
			[]string{"source"},
		),
		RatePersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "rate_persist_failures_total",
			Help: "Fallos al guardar la tasa en el almacén local",
		}),
		RateValue: f.NewGauge(prometheus.GaugeOpts{
			Name: "rate_value",
			Help: "Tasa USD -> Bs. vigente",
		}),
		SalesCommittedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sales_committed_total",
				Help: "Ventas confirmadas (duplicate=true si ya existían)",
			},
			[]string{"duplicate"},
		),
		SalesRejectedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sales_rejected_total",
				Help: "Ventas rechazadas por motivo",
			},
			[]string{"reason"},
		),
		SalesReversedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sales_reversed_total",
				Help: "Ventas revertidas (partial=true si se omitieron productos)",
			},
			[]string{"partial"},
		),
		RateTriggerRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_trigger_runs_total",
				Help: "Ejecuciones del disparador periódico por resultado",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) ObserveOutcome(origin entity.RateOrigin, reason entity.RateReason) {
	m.RateOutcomesTotal.WithLabelValues(string(origin), string(reason)).Inc()
}

func (m *Metrics) SourceFailed(source string) { m.RateSourceFailures.WithLabelValues(source).Inc() }
func (m *Metrics) PersistFailed()             { m.RatePersistFailures.Inc() }
func (m *Metrics) SetRate(value float64)      { m.RateValue.Set(value) }

func (m *Metrics) SaleCommitted(duplicate bool) {
	m.SalesCommittedTotal.WithLabelValues(strconv.FormatBool(duplicate)).Inc()
}

func (m *Metrics) SaleRejected(reason string) { m.SalesRejectedTotal.WithLabelValues(reason).Inc() }

func (m *Metrics) SaleReversed(partial bool) {
	m.SalesReversedTotal.WithLabelValues(strconv.FormatBool(partial)).Inc()
}

// TriggerRun cuenta una ejecución del disparador (refreshed, skipped, degraded, retry_scheduled).
func (m *Metrics) TriggerRun(outcome string) { m.RateTriggerRuns.WithLabelValues(outcome).Inc() }

package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
	"github.com/jhoicas/TioCoco-api/internal/infrastructure/metrics"
)

func TestMetrics_Contadores(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveOutcome(entity.RateOriginCached, entity.RateReasonNoConnectivity)
	m.ObserveOutcome(entity.RateOriginCached, entity.RateReasonNoConnectivity)
	m.SaleCommitted(false)
	m.SaleRejected("insufficient_stock")
	m.SetRate(36.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RateOutcomesTotal.WithLabelValues("cached", "no_connectivity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SalesCommittedTotal.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SalesRejectedTotal.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 36.5, testutil.ToFloat64(m.RateValue))
}

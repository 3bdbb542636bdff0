// Package metrics exposes the coordinator's Prometheus surface: HTTP
// request metrics for the admin/command API, and saga-level business
// counters for every terminal event the consumers emit.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics covers the command/admin HTTP surface.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics creates HTTP metrics for a service.
func NewHTTPMetrics(serviceName string) *HTTPMetrics {
	return &HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    serviceName + "_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordHTTPRequest records one HTTP request.
func (m *HTTPMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SagaMetrics counts every saga-relevant terminal event, one counter
// vec per consumer stage so a single query can show where orders are
// dropping out of the happy path.
type SagaMetrics struct {
	OrdersCreated      prometheus.Counter
	OrdersCancelled    *prometheus.CounterVec // label: reason
	ReservationsResult *prometheus.CounterVec // label: result (reserved|failed)
	PaymentsResult     *prometheus.CounterVec // label: result (processed|failed), reason
	RefundsResult      *prometheus.CounterVec // label: result (processed|failed)
	LowStockSignals    prometheus.Counter
}

// NewSagaMetrics creates the business metric set for serviceName.
func NewSagaMetrics(serviceName string) *SagaMetrics {
	return &SagaMetrics{
		OrdersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: serviceName + "_orders_created_total",
			Help: "Total number of orders created",
		}),
		OrdersCancelled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: serviceName + "_orders_cancelled_total",
			Help: "Total number of orders cancelled, by reason",
		}, []string{"reason"}),
		ReservationsResult: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: serviceName + "_reservations_total",
			Help: "Total number of reservation attempts, by result",
		}, []string{"result"}),
		PaymentsResult: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: serviceName + "_payments_total",
			Help: "Total number of payment attempts, by result and reason",
		}, []string{"result", "reason"}),
		RefundsResult: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: serviceName + "_refunds_total",
			Help: "Total number of refund attempts, by result",
		}, []string{"result"}),
		LowStockSignals: promauto.NewCounter(prometheus.CounterOpts{
			Name: serviceName + "_low_stock_signals_total",
			Help: "Total number of LOW_STOCK signals raised after a commit",
		}),
	}
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the trader.
type Metrics struct {
	registry *prometheus.Registry

	SignalsProcessed   prometheus.Counter
	OrdersSubmitted    prometheus.Counter
	SubmitRetries      prometheus.Counter
	SubmitFailures     prometheus.Counter
	ExecutionsReported prometheus.Counter
	PositionSyncs      prometheus.Counter
	PositionSyncErrors prometheus.Counter
	AccountSyncs       prometheus.Counter
	PendingExecutions  prometheus.Gauge
}

// New creates and registers the trader metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SignalsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_signals_processed_total",
			Help: "Trade signals fetched and dispatched to the broker.",
		}),
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_orders_submitted_total",
			Help: "Orders accepted by the broker.",
		}),
		SubmitRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_submit_retries_total",
			Help: "Order submissions that failed transiently and were marked retry_pending.",
		}),
		SubmitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_submit_failures_total",
			Help: "Orders that reached the failed terminal status.",
		}),
		ExecutionsReported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_executions_reported_total",
			Help: "Execution reports sent to the backend.",
		}),
		PositionSyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_position_syncs_total",
			Help: "Successful position sync cycles.",
		}),
		PositionSyncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_position_sync_errors_total",
			Help: "Position sync cycles that failed.",
		}),
		AccountSyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_account_syncs_total",
			Help: "Successful account sync cycles.",
		}),
		PendingExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_pending_executions",
			Help: "Executions currently tracked in the pending table.",
		}),
	}

	registry.MustRegister(
		m.SignalsProcessed,
		m.OrdersSubmitted,
		m.SubmitRetries,
		m.SubmitFailures,
		m.ExecutionsReported,
		m.PositionSyncs,
		m.PositionSyncErrors,
		m.AccountSyncs,
		m.PendingExecutions,
	)
	return m
}

// Handler returns the exposition handler for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts the /metrics endpoint on addr. Blocks; run in a goroutine.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}

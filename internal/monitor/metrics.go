// Package monitor exposes the daemon's Prometheus metrics. One Metrics
// instance owns a private registry, observes engine work and journal events,
// and serves the scrape endpoint.
package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/engine"
	"github.com/apexarb/arbengine/internal/journal"
	"github.com/apexarb/arbengine/internal/token"
)

// Metrics collects and serves the daemon's operational metrics. Amount-valued
// series are reported in the asset's display units, labelled by symbol.
type Metrics struct {
	tokens   *token.Registry
	registry *prometheus.Registry

	workTotal       *prometheus.CounterVec
	workDuration    *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
	profitTotal     *prometheus.CounterVec
	lastProfit      *prometheus.GaugeVec
	failuresTotal   *prometheus.CounterVec
	withdrawnTotal  *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	wsClients       prometheus.Gauge
}

// New creates a Metrics instance with its own registry, including the
// standard Go runtime and process collectors.
func New(tokens *token.Registry) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		tokens:   tokens,
		registry: registry,
		workTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arbd_work_total",
			Help: "Executed work items by kind and outcome",
		}, []string{"kind", "outcome"}),
		workDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbd_work_duration_seconds",
			Help:    "Work item execution time by kind",
			Buckets: prometheus.ExponentialBuckets(1e-4, 4, 10),
		}, []string{"kind"}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arbd_journal_events_total",
			Help: "Committed journal events by kind",
		}, []string{"kind"}),
		profitTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arbd_profit_total",
			Help: "Cumulative realized profit in display units",
		}, []string{"asset"}),
		lastProfit: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arbd_last_profit",
			Help: "Profit of the most recent cleared attempt in display units",
		}, []string{"asset"}),
		failuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arbd_arbitrage_failures_total",
			Help: "Attempts settled from the fallback funder",
		}, []string{"asset"}),
		withdrawnTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arbd_withdrawn_total",
			Help: "Cumulative custody withdrawals in display units",
		}, []string{"asset"}),
		rejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arbd_auth_rejections_total",
			Help: "Rejected intent submissions by reason",
		}, []string{"reason"}),
		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arbd_ws_clients",
			Help: "Connected websocket clients",
		}),
	}
}

// Handler returns the scrape endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveWork records one executed work item.
func (m *Metrics) ObserveWork(kind string, success bool, elapsed time.Duration) {
	outcome := "ok"
	if !success {
		outcome = "failed"
	}
	m.workTotal.WithLabelValues(kind, outcome).Inc()
	m.workDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveEvent counts one committed journal event.
func (m *Metrics) ObserveEvent(kind string) {
	m.eventsTotal.WithLabelValues(kind).Inc()
}

// ObserveRejection counts one rejected intent submission.
func (m *Metrics) ObserveRejection(reason string) {
	m.rejectionsTotal.WithLabelValues(reason).Inc()
}

// WSConnected and WSDisconnected track the websocket client gauge.
func (m *Metrics) WSConnected()    { m.wsClients.Inc() }
func (m *Metrics) WSDisconnected() { m.wsClients.Dec() }

// NotifyEvent extracts amount-valued series from committed events. Parse
// problems zero the sample rather than failing the fanout.
func (m *Metrics) NotifyEvent(_ context.Context, ev domain.Event) {
	switch e := ev.(type) {
	case domain.LoanExecutedEvent:
		asset := m.tokens.Symbol(e.Asset)
		v := m.displayValue(e.Asset, e.Profit)
		m.profitTotal.WithLabelValues(asset).Add(v)
		m.lastProfit.WithLabelValues(asset).Set(v)
	case domain.ArbitrageFailedEvent:
		m.failuresTotal.WithLabelValues(m.tokens.Symbol(e.Asset)).Inc()
	case domain.WithdrawalEvent:
		m.withdrawnTotal.WithLabelValues(m.tokens.Symbol(e.Asset)).Add(m.displayValue(e.Asset, e.Amount))
	}
}

// displayValue converts a base-unit amount string to a float in the asset's
// display units.
func (m *Metrics) displayValue(asset common.Address, amount string) float64 {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0
	}
	if in, ok := m.tokens.ByAddress(asset); ok {
		d = d.Shift(-in.Decimals)
	}
	f, _ := d.Float64()
	return f
}

// Compile-time interface checks.
var (
	_ engine.AttemptObserver = (*Metrics)(nil)
	_ journal.Observer       = (*Metrics)(nil)
	_ journal.Notifier       = (*Metrics)(nil)
)

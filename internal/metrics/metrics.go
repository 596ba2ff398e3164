// Package metrics owns the Prometheus registry exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the application registry. A dedicated registry keeps test
// binaries free of global collector collisions.
var Registry = prometheus.NewRegistry()

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"},
	)

	walletBinds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_binds_total",
			Help: "Wallet bind attempts by result.",
		},
		[]string{"result"},
	)

	ledgerTransactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Ledger transactions by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	ledgerConfirmation = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_confirmation_seconds",
			Help:    "Time from submission to confirmation.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"op"},
	)

	balanceSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_balance_sync_total",
			Help: "Balance cache refreshes by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests,
		logins,
		walletBinds,
		ledgerTransactions,
		ledgerConfirmation,
		balanceSyncs,
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func ObserveHTTP(method, route string, status int) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func ObserveLogin(result string) {
	logins.WithLabelValues(result).Inc()
}

func ObserveBind(result string) {
	walletBinds.WithLabelValues(result).Inc()
}

// ObserveLedger records a finished ledger operation. The latency histogram
// is only fed for confirmed transactions.
func ObserveLedger(op, outcome string, elapsed time.Duration) {
	ledgerTransactions.WithLabelValues(op, outcome).Inc()
	if outcome == "confirmed" {
		ledgerConfirmation.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}

func ObserveBalanceSync(result string) {
	balanceSyncs.WithLabelValues(result).Inc()
}

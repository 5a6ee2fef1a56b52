// Package metrics exposes Prometheus instrumentation for the trading loop.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optionsentinel_poll_cycles_total",
		Help: "Polling cycles run by the session orchestrator.",
	})
	SignalsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optionsentinel_signals_total",
		Help: "Entry signals confirmed, per underlying.",
	}, []string{"symbol"})
	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optionsentinel_orders_placed_total",
		Help: "Orders transmitted to the gateway, by kind (entry, exit).",
	}, []string{"kind"})
	TradesClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optionsentinel_trades_closed_total",
		Help: "Trades that reached a terminal state.",
	})
	LivePnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "optionsentinel_live_pnl_dollars",
		Help: "Floating PnL across active trades.",
	})
)

// Serve starts the metrics listener in the background. Failure to bind is
// logged, not fatal; a running bot without metrics beats no bot.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("[WARN] metrics listener on %s: %v", addr, err)
		}
	}()
}

// Package metrics provides Prometheus instrumentation for the node.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InstructionsTotal counts executed instructions by type and outcome.
	// Outcome is "ok" or the program error name.
	InstructionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealchain_instructions_total",
		Help: "Total instructions executed",
	}, []string{"type", "outcome"})

	InstructionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dealchain_instruction_latency_seconds",
		Help:    "Instruction execution latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"type"})

	// BlockHeight is the height of the last committed block.
	BlockHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealchain_block_height",
		Help: "Height of the last committed block",
	})

	BlockTransactions = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dealchain_block_transactions",
		Help:    "Transactions included per block",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	MempoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealchain_mempool_size",
		Help: "Pending transactions in the mempool",
	})

	// CouponsMinted counts successful mints.
	CouponsMinted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealchain_coupons_minted_total",
		Help: "Coupons minted",
	})

	// MarketVolume tracks cumulative resale volume split into seller and
	// platform shares.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealchain_market_volume_lamports_total",
		Help: "Cumulative marketplace volume in lamports",
	}, []string{"share"})

	RewardsPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealchain_rewards_paid_lamports_total",
		Help: "Staking rewards paid out in lamports",
	})

	// WebSocketClients tracks connected event stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealchain_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	PeersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealchain_peers_connected",
		Help: "Number of connected p2p peers",
	})

	// P2PMessagesTotal counts received p2p messages by type. Messages
	// with no registered handler are labeled handled="false".
	P2PMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealchain_p2p_messages_total",
		Help: "Received p2p messages",
	}, []string{"type", "handled"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealchain_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dealchain_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// RPCCallsTotal counts JSON-RPC calls by method and whether they errored.
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealchain_rpc_calls_total",
		Help: "Total JSON-RPC calls",
	}, []string{"method", "error"})
)

// ObserveInstruction records one instruction outcome.
func ObserveInstruction(typ, outcome string, start time.Time) {
	InstructionsTotal.WithLabelValues(typ, outcome).Inc()
	InstructionLatency.WithLabelValues(typ).Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

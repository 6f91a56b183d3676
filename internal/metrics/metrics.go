// Счётчики демона. Регистрируются один раз в отдельном реестре,
// отдаются через Handler на /metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *prometheus.Registry

	framesReceived  *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	throttleFlushes *prometheus.CounterVec
	busDrops        *prometheus.CounterVec
	historyRequests *prometheus.CounterVec
	activeStreams   *prometheus.GaugeVec
)

// Init создаёт и регистрирует метрики; повторные вызовы ничего не делают
func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		framesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datafeed_ws_frames_total",
			Help: "WebSocket frames received",
		}, []string{"exchange"})
		framesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datafeed_ws_frames_dropped_total",
			Help: "Frames discarded: parse errors, unknown channels",
		}, []string{"exchange", "reason"})
		reconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datafeed_ws_reconnects_total",
			Help: "Abnormal closes followed by a scheduled reconnect",
		}, []string{"exchange"})
		throttleFlushes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datafeed_throttle_flushes_total",
			Help: "Batches published by the throttler",
		}, []string{"exchange"})
		busDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datafeed_bus_drops_total",
			Help: "Events dropped because a subscriber channel was full",
		}, []string{"exchange"})
		historyRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datafeed_history_requests_total",
			Help: "History requests by result",
		}, []string{"exchange", "status"})
		activeStreams = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "datafeed_active_streams",
			Help: "Active trade and orderbook streams",
		}, []string{"exchange", "kind"})

		registry.MustRegister(framesReceived, framesDropped, reconnects, throttleFlushes,
			busDrops, historyRequests, activeStreams)
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler отдаёт метрики в формате Prometheus
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Registry нужен тестам для чтения значений
func Registry() *prometheus.Registry {
	Init()
	return registry
}

func FrameReceived(exchange string) {
	Init()
	framesReceived.WithLabelValues(exchange).Inc()
}

func FrameDropped(exchange, reason string) {
	Init()
	framesDropped.WithLabelValues(exchange, reason).Inc()
}

func Reconnect(exchange string) {
	Init()
	reconnects.WithLabelValues(exchange).Inc()
}

func ThrottleFlush(exchange string) {
	Init()
	throttleFlushes.WithLabelValues(exchange).Inc()
}

func BusDrop(exchange string) {
	Init()
	busDrops.WithLabelValues(exchange).Inc()
}

// HistoryRequest: status = ok | empty | error
func HistoryRequest(exchange, status string) {
	Init()
	historyRequests.WithLabelValues(exchange, status).Inc()
}

// SetActiveStreams выставляет число активных потоков вида kind
func SetActiveStreams(exchange, kind string, n int) {
	Init()
	activeStreams.WithLabelValues(exchange, kind).Set(float64(n))
}

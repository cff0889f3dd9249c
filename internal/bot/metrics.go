package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics структура для метрик Prometheus
type Metrics struct {
	MessagesProcessed    prometheus.Counter
	CallbacksProcessed   prometheus.Counter
	ErrorsTotal          prometheus.Counter
	RateLimited          prometheus.Counter
	UpdateProcessingTime prometheus.Histogram
	SignalsPushed        *prometheus.CounterVec
	ExportsTotal         prometheus.Counter
}

// NewMetrics регистрирует метрики бота в reg (nil = default registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		MessagesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_messages_processed_total",
			Help: "Total number of processed messages",
		}),
		CallbacksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_callbacks_processed_total",
			Help: "Total number of processed callback queries",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_errors_total",
			Help: "Total number of errors and recovered panics",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_rate_limited_total",
			Help: "Updates dropped by the per-user message limit",
		}),
		UpdateProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "telegram_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),
		SignalsPushed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telegram_bot_signals_pushed_total",
			Help: "Signal pushes by result",
		}, []string{"result"}),
		ExportsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_exports_total",
			Help: "Admin xlsx exports sent",
		}),
	}
}

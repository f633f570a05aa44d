package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики crawl-worker'а.
type Metrics struct {
	// Processed — завершённые доставки по исходу (published, retry_scheduled, ...).
	Processed *prometheus.CounterVec

	// RetriesScheduled — запланированные повторы по классу ошибки.
	RetriesScheduled *prometheus.CounterVec

	// PublishFailures — неудачные публикации по цели (result, retry, dead_letter).
	PublishFailures *prometheus.CounterVec

	// ExtractDuration — длительность вызова extractor'а по результату.
	ExtractDuration *prometheus.HistogramVec
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// reg == nil — метрики не регистрируются (удобно в тестах).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Processed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_messages_processed_total",
			Help: "Deliveries that reached a terminal transition, by outcome.",
		}, []string{"outcome"}),

		RetriesScheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_retries_scheduled_total",
			Help: "Redeliveries scheduled, by failure kind.",
		}, []string{"kind"}),

		PublishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_publish_failures_total",
			Help: "Publishes that failed, by target.",
		}, []string{"target"}),

		ExtractDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawl_extract_duration_seconds",
			Help:    "Extractor call duration, by result.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"result"}),
	}
}

// ObserveExtract записывает длительность вызова extractor'а.
func (m *Metrics) ObserveExtract(result string, d time.Duration) {
	m.ExtractDuration.WithLabelValues(result).Observe(d.Seconds())
}

// IncProcessed увеличивает счётчик исходов.
func (m *Metrics) IncProcessed(outcome string) {
	m.Processed.WithLabelValues(outcome).Inc()
}

// IncRetry увеличивает счётчик повторов.
func (m *Metrics) IncRetry(kind string) {
	m.RetriesScheduled.WithLabelValues(kind).Inc()
}

// IncPublishFailure увеличивает счётчик неудачных публикаций.
func (m *Metrics) IncPublishFailure(target string) {
	m.PublishFailures.WithLabelValues(target).Inc()
}

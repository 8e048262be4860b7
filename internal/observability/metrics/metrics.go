package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for conversation turns.
type ConversationMetrics struct {
	turnsTotal        *prometheus.CounterVec
	fallbackTotal     *prometheus.CounterVec
	generationLatency *prometheus.HistogramVec
	inboundTotal      *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tuvendedor",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total processed conversation turns",
		}, []string{"channel", "outcome"}),
		fallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tuvendedor",
			Subsystem: "conversation",
			Name:      "fallback_total",
			Help:      "Turns answered by the canned fallback reply",
		}, []string{"reason"}),
		generationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tuvendedor",
			Subsystem: "conversation",
			Name:      "generation_latency_seconds",
			Help:      "Latency of response generation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"generator"}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tuvendedor",
			Subsystem: "channels",
			Name:      "inbound_total",
			Help:      "Inbound channel messages received",
		}, []string{"channel", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.fallbackTotal, m.generationLatency, m.inboundTotal)
	return m
}

func (m *ConversationMetrics) ObserveTurn(channel, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *ConversationMetrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbackTotal.WithLabelValues(reason).Inc()
}

func (m *ConversationMetrics) ObserveGenerationLatency(generator string, seconds float64) {
	if m == nil {
		return
	}
	m.generationLatency.WithLabelValues(generator).Observe(seconds)
}

func (m *ConversationMetrics) ObserveInbound(channel, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(channel, status).Inc()
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestConversationMetricsObserve(t *testing.T) {
	m := NewConversationMetrics(prometheus.NewRegistry())
	m.ObserveTurn("whatsapp", "ok")
	m.ObserveTurn("web", "degraded")
	m.ObserveFallback("generation_failed")
	m.ObserveGenerationLatency("llm", 0.5)
	m.ObserveInbound("whatsapp", "accepted")
}

func TestConversationMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)
	m.ObserveTurn("whatsapp", "error")
}

func TestConversationMetricsNilSafe(t *testing.T) {
	var m *ConversationMetrics
	m.ObserveTurn("whatsapp", "ok")
	m.ObserveFallback("reason")
	m.ObserveGenerationLatency("llm", 0.1)
	m.ObserveInbound("web", "accepted")
}

package tools

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const codeOK = "ok"

var (
	// toolCalls counts dispatched calls.
	// Labels: tool, code (ok or the error code)
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cv_agent",
		Name:      "tool_calls_total",
		Help:      "Total tool calls by tool and result code",
	}, []string{"tool", "code"})

	// toolDuration measures end-to-end dispatch latency.
	// Labels: tool
	toolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cv_agent",
		Name:      "tool_duration_seconds",
		Help:      "Tool call latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 90},
	}, []string{"tool"})

	generationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cv_agent",
		Name:      "generations_in_flight",
		Help:      "PDF generations currently rendering",
	})

	// packChars tracks the serialized size of context packs.
	packChars = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cv_agent",
		Name:      "context_pack_chars",
		Help:      "Serialized context pack size in characters",
		Buckets:   prometheus.ExponentialBuckets(500, 2, 8),
	})
)

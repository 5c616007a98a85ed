package session

import "github.com/prometheus/client_golang/prometheus"

var (
	promptTokensTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chatcore",
		Subsystem: "session",
		Name:      "prompt_tokens_total",
		Help:      "Prompt tokens evaluated",
	})

	generatedTokensTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chatcore",
		Subsystem: "session",
		Name:      "generated_tokens_total",
		Help:      "Tokens generated and fed back into the context",
	})

	evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chatcore",
		Subsystem: "session",
		Name:      "evictions_total",
		Help:      "Eviction calls made against backend memory",
	})

	evictedTokensTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chatcore",
		Subsystem: "session",
		Name:      "evicted_tokens_total",
		Help:      "Tokens removed from backend memory by eviction",
	})

	contextUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatcore",
		Subsystem: "session",
		Name:      "context_tokens",
		Help:      "Tokens currently resident in backend memory",
	})

	generationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chatcore",
		Subsystem: "session",
		Name:      "generation_duration_seconds",
		Help:      "Wall time of generate calls",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	stopsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatcore",
		Subsystem: "session",
		Name:      "stops_total",
		Help:      "Generate calls by stop reason",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(promptTokensTotal, generatedTokensTotal, evictionsTotal,
		evictedTokensTotal, contextUsage, generationDuration, stopsTotal)
}

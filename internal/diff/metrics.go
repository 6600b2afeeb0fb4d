package diff

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

// Compaction outcomes.
const (
	outcomeCompacted     = "compacted"
	outcomeUnrepresented = "unrepresentable"
	outcomeNoBefore      = "no_before"
)

var (
	renderLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "diff",
		Name:      "render_seconds",
		Help:      "Time spent rendering diffs.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"kind"})

	compactOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diff",
		Name:      "compact_total",
		Help:      "Email diff compactions by outcome.",
	}, []string{"outcome"})

	tracer = otel.Tracer("docdiff/api/internal/diff")
)

func init() {
	prometheus.MustRegister(renderLatency, compactOutcomes)
}

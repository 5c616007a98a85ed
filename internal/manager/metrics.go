package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatcore",
		Subsystem: "manager",
		Name:      "loads_total",
		Help:      "Model loads by result",
	}, []string{"result"})

	loadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chatcore",
		Subsystem: "manager",
		Name:      "load_duration_seconds",
		Help:      "Time to tear down the old session and build the new one",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	admissionRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chatcore",
		Subsystem: "manager",
		Name:      "admission_rejections_total",
		Help:      "Requests rejected because the queue was full or the wait timed out",
	})

	recoveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatcore",
		Subsystem: "manager",
		Name:      "recoveries_total",
		Help:      "Session error recoveries by kind",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(loadsTotal, loadDuration, admissionRejections, recoveries)
}

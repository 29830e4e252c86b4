package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studio",
		Name:      "store_operations_total",
		Help:      "Store operations by store, operation and outcome",
	}, []string{"store", "op", "outcome"})

	StoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "studio",
		Name:      "store_operation_duration_seconds",
		Help:      "Duration of store operations",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"store", "op"})

	ImagesUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studio",
		Name:      "images_uploaded_total",
		Help:      "Images accepted by the uploader, by role",
	}, []string{"role"})

	ImagesReconstructed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studio",
		Name:      "images_reconstructed_total",
		Help:      "Images spliced back into loaded projects",
	})

	PersistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studio",
		Name:      "persistence_failures_total",
		Help:      "Partially applied multi-store writes, by operation",
	}, []string{"op"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "studio",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

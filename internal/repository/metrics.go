package repository

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_operation_duration_seconds",
			Help:    "Duration of repository operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"entity", "operation"},
	)

	operationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_operation_errors_total",
			Help: "Total number of failed repository operations",
		},
		[]string{"entity", "operation"},
	)
)

func observe(entity, op string, start time.Time, err error) {
	operationDuration.WithLabelValues(entity, op).Observe(time.Since(start).Seconds())
	if err != nil {
		operationErrors.WithLabelValues(entity, op).Inc()
	}
}

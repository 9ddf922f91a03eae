package middleware

import (
	"strconv"
	"time"

	apperr "socialgraph/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status", "service"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "service"},
	)

	friendOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friend_operations_total",
			Help: "Total number of friend request ledger and graph operations",
		},
		[]string{"operation", "status", "service"},
	)

	friendOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "friend_operation_duration_seconds",
			Help:    "Duration of friend operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation", "service"},
	)

	friendOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friend_operation_errors_total",
			Help: "Total number of failed friend operations by error type",
		},
		[]string{"operation", "error_type", "service"},
	)
)

func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status, serviceName).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path, serviceName).Observe(time.Since(start).Seconds())
	}
}

// RecordFriendOperation labels errors by their apperr type so cardinality
// stays bounded.
func RecordFriendOperation(operation, serviceName string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		friendOperationErrors.WithLabelValues(operation, string(apperr.TypeOf(err)), serviceName).Inc()
	}
	friendOperationsTotal.WithLabelValues(operation, status, serviceName).Inc()
	friendOperationDuration.WithLabelValues(operation, serviceName).Observe(duration.Seconds())
}

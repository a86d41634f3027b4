// Package metrics exposes the prometheus collectors recorded by cavelog.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "cavelog"

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Database operation metrics
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Domain metrics
	TripsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_trips_saved_total",
			Help: "Total number of trips created or updated",
		},
		[]string{"source"},
	)
	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_import_rows_total",
			Help: "Total number of CSV import rows by result",
		},
		[]string{"result"},
	)
	FeedPages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_feed_pages_total",
			Help: "Total number of feed pages served",
		},
	)
	Emails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_emails_total",
			Help: "Total number of emails by template and result",
		},
		[]string{"template", "result"},
	)
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_rate_limited_total",
			Help: "Total number of requests rejected by a rate limit policy",
		},
		[]string{"policy"},
	)
	PhotoUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_photo_uploads_total",
			Help: "Total number of photo upload steps by stage",
		},
		[]string{"stage"},
	)
)

// TrackDBOperation records the duration of a database operation started at start.
// Use as `defer metrics.TrackDBOperation("trip_create", time.Now())`.
func TrackDBOperation(operation string, start time.Time) {
	DBOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordTripSaved increments the trip save counter for source.
func RecordTripSaved(source string, n int) {
	TripsSaved.WithLabelValues(source).Add(float64(n))
}

// RecordImportRows increments the import row counter for result.
func RecordImportRows(result string, n int) {
	ImportRows.WithLabelValues(result).Add(float64(n))
}

// RecordEmail increments the email counter.
func RecordEmail(template, result string) {
	Emails.WithLabelValues(template, result).Inc()
}

// RecordRateLimited increments the rejected request counter for policy.
func RecordRateLimited(policy string) {
	RateLimited.WithLabelValues(policy).Inc()
}

// RecordPhotoUpload increments the photo upload counter for stage.
func RecordPhotoUpload(stage string) {
	PhotoUploads.WithLabelValues(stage).Inc()
}

// Middleware records request counts and durations per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

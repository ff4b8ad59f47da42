package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensconv_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lensconv_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Upload Metrics
	SceneUploadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lensconv_scene_uploads_total",
			Help: "Total number of uploaded tracking project files",
		},
	)

	SceneUploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lensconv_scene_upload_size_bytes",
			Help:    "Size of uploaded tracking project files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
		},
	)

	// Conversion Metrics
	CamerasConvertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensconv_cameras_converted_total",
			Help: "Total number of cameras converted",
		},
		[]string{"from", "to"},
	)

	CamerasRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensconv_cameras_rejected_total",
			Help: "Total number of camera conversions rejected",
		},
		[]string{"reason"},
	)

	DistortionFramesEvaluated = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lensconv_distortion_frames_evaluated",
			Help:    "Number of frames the distortion model was evaluated on per camera",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	InvariantViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensconv_invariant_violations_total",
			Help: "Total number of internal consistency check failures",
		},
		[]string{"check"},
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lensconv_conversion_duration_seconds",
			Help:    "Scene conversion duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"stage"},
	)

	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensconv_exports_total",
			Help: "Total number of exported files",
		},
		[]string{"exporter", "status"},
	)

	// Job Metrics
	JobsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensconv_jobs_created_total",
			Help: "Total number of conversion jobs created",
		},
		[]string{"destination"},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensconv_jobs_completed_total",
			Help: "Total number of finished conversion jobs",
		},
		[]string{"status"},
	)

	JobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lensconv_jobs_in_progress",
			Help: "Number of jobs currently being processed",
		},
	)

	JobsQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lensconv_jobs_queue_depth",
			Help: "Number of jobs waiting in queue",
		},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lensconv_job_duration_seconds",
			Help:    "Job processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensconv_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageBytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensconv_storage_bytes_transferred_total",
			Help: "Total bytes transferred to/from storage",
		},
		[]string{"operation"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensconv_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensconv_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensconv_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordSceneUpload records an uploaded project file
func RecordSceneUpload(size int64) {
	SceneUploadsTotal.Inc()
	SceneUploadSizeBytes.Observe(float64(size))
}

// RecordCameraConverted records a successful camera conversion
func RecordCameraConverted(from, to string, distortionFrames int) {
	CamerasConvertedTotal.WithLabelValues(from, to).Inc()
	DistortionFramesEvaluated.Observe(float64(distortionFrames))
}

// RecordCameraRejected records a refused camera conversion
func RecordCameraRejected(reason string) {
	CamerasRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordInvariantViolation records a failed internal consistency check
func RecordInvariantViolation(check string) {
	InvariantViolationsTotal.WithLabelValues(check).Inc()
}

// RecordStage records the duration of one pipeline stage (read, convert, export)
func RecordStage(stage string, duration float64) {
	ConversionDuration.WithLabelValues(stage).Observe(duration)
}

// RecordExport records an exporter run
func RecordExport(exporter, status string) {
	ExportsTotal.WithLabelValues(exporter, status).Inc()
}

// RecordJobCreated records a job creation
func RecordJobCreated(destination string) {
	JobsCreatedTotal.WithLabelValues(destination).Inc()
}

// RecordJobCompleted records a job completion
func RecordJobCompleted(status string, duration float64) {
	JobsCompletedTotal.WithLabelValues(status).Inc()
	JobDuration.Observe(duration)
}

// UpdateJobMetrics updates current job metrics
func UpdateJobMetrics(inProgress, queueDepth int) {
	JobsInProgress.Set(float64(inProgress))
	JobsQueueDepth.Set(float64(queueDepth))
}

// RecordStorageOperation records a storage operation
func RecordStorageOperation(operation, status string, bytesTransferred int64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	StorageBytesTransferred.WithLabelValues(operation).Add(float64(bytesTransferred))
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

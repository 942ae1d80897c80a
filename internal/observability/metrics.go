package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	apiRequestsTotal     *prometheus.CounterVec
	apiLatencySeconds    *prometheus.HistogramVec
	apiErrorsTotal       *prometheus.CounterVec
	uploadRequestsTotal  *prometheus.CounterVec
	uploadRejectedTotal  *prometheus.CounterVec
	uploadLatencySeconds prometheus.Histogram
	submissionsTotal     *prometheus.CounterVec
	submissionLatency    *prometheus.HistogramVec
	analysisRiskTotal    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 30.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_accepted_total",
			Help: "Artifacts accepted by media intake, by MIME type.",
		}, []string{"mime"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_rejected_total",
			Help: "Artifacts rejected by media intake, by reason.",
		}, []string{"reason"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "upload_latency_seconds",
			Help:    "Time spent validating and storing artifacts.",
			Buckets: prometheus.DefBuckets,
		})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detection_submissions_total",
			Help: "Detection submissions by kind and terminal state.",
		}, []string{"kind", "state"})

		submissionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "detection_submission_seconds",
			Help:    "End-to-end submission latency by kind.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"})

		analysisRiskTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_results_total",
			Help: "Persisted analysis results by risk level.",
		}, []string{"risk_level"})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			uploadRequestsTotal, uploadRejectedTotal, uploadLatencySeconds,
			submissionsTotal, submissionLatency, analysisRiskTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// UploadRequests counts accepted artifacts.
func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRequestsTotal
}

// UploadRejected counts rejected artifacts.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// UploadLatency tracks media intake duration.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}

// Submissions counts submissions by terminal state.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// SubmissionLatency tracks end-to-end submission time.
func SubmissionLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return submissionLatency
}

// AnalysisRisk counts persisted results by risk level.
func AnalysisRisk() *prometheus.CounterVec {
	RegisterMetrics()
	return analysisRiskTotal
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studybuddy_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studybuddy_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	MessagesHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studybuddy_messages_handled_total",
			Help: "Chat messages handled, by conversation type and outcome.",
		},
		[]string{"type", "outcome"}, // outcome: generated, deflected, fallback, placeholder
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studybuddy_generation_duration_seconds",
			Help:    "Generation backend latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"provider"},
	)

	RetrievalUnavailableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studybuddy_retrieval_unavailable_total",
			Help: "Retrieval calls that degraded to no context.",
		},
		[]string{"scope", "reason"},
	)

	NamespaceQueryErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studybuddy_namespace_query_errors_total",
			Help: "Failed vector namespace sub-queries during fan-out retrieval.",
		},
	)

	WindowsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studybuddy_memory_windows_swept_total",
			Help: "Conversation windows evicted after the session timeout.",
		},
	)

	WindowErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studybuddy_memory_window_errors_total",
			Help: "Conversation window operations that failed and were skipped.",
		},
		[]string{"op"},
	)

	BestEffortFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studybuddy_best_effort_failures_total",
			Help: "Best-effort side effects that failed and were swallowed.",
		},
		[]string{"op"},
	)

	DocumentsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studybuddy_documents_ingested_total",
			Help: "Uploaded documents processed, by status.",
		},
		[]string{"status"},
	)

	WebsocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "studybuddy_websocket_connections",
			Help: "Number of open realtime connections.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		MessagesHandledTotal,
		GenerationDuration,
		RetrievalUnavailableTotal,
		NamespaceQueryErrorsTotal,
		WindowsSweptTotal,
		WindowErrorsTotal,
		BestEffortFailuresTotal,
		DocumentsIngestedTotal,
		WebsocketConnections,
	)
}

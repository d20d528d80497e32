package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cypress_worker"

var (
	// MessagesReceived — количество полученных из очереди сообщений.
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_received_total",
		Help:      "Messages received from the job queue.",
	})

	// MessagesDeleted — удаления сообщений по результату (ok, error).
	MessagesDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_deleted_total",
		Help:      "Queue message deletions by result.",
	}, []string{"result"})

	// JobsProcessed — обработанные сообщения по исходу.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_processed_total",
		Help:      "Processed job messages by outcome.",
	}, []string{"outcome"})

	// SpecCache — обращения к локальному кэшу spec-файлов (hit, miss, error).
	SpecCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spec_cache_total",
		Help:      "Spec file cache lookups by result.",
	}, []string{"result"})

	// ArtifactUploads — загрузки скриншотов по результату (ok, error).
	ArtifactUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifact_uploads_total",
		Help:      "Screenshot uploads by result.",
	}, []string{"result"})

	// EngineDuration — длительность прогона движка.
	EngineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "engine_run_duration_seconds",
		Help:      "Duration of test engine runs.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	})

	// StoreConnectAttempts — попытки подключения к хранилищу (ok, error).
	StoreConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_connect_attempts_total",
		Help:      "Document store connection attempts by result.",
	}, []string{"result"})
)

// Result возвращает метку "ok" или "error".
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpDurationHistogram   *prometheus.HistogramVec
	ingestRunCounter        *prometheus.CounterVec
	fetchAttemptCounter     *prometheus.CounterVec
	upsertStageFailCounter  *prometheus.CounterVec
	recordsUpsertedCounter  prometheus.Counter
	ingestDaysFailedCounter prometheus.Counter
	workerRunCounter        *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ingestRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_runs_total",
			Help: "Ingestion run outcomes",
		}, []string{"result"})

		fetchAttemptCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_fetch_attempts_total",
			Help: "Upstream rate API fetch attempt outcomes",
		}, []string{"outcome"})

		upsertStageFailCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upsert_stage_failures_total",
			Help: "Upsert protocol failures by stage",
		}, []string{"stage"})

		recordsUpsertedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rate_records_upserted_total",
			Help: "Rate records merged into the destination table",
		})

		ingestDaysFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_days_failed_total",
			Help: "Days skipped within ingestion windows",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			ingestRunCounter,
			fetchAttemptCounter,
			upsertStageFailCounter,
			recordsUpsertedCounter,
			ingestDaysFailedCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementIngestRun(result string) {
	if ingestRunCounter == nil {
		return
	}
	ingestRunCounter.WithLabelValues(result).Inc()
}

func IncrementFetchAttempt(outcome string) {
	if fetchAttemptCounter == nil {
		return
	}
	fetchAttemptCounter.WithLabelValues(outcome).Inc()
}

func IncrementUpsertStageFailure(stage string) {
	if upsertStageFailCounter == nil {
		return
	}
	upsertStageFailCounter.WithLabelValues(stage).Inc()
}

func AddRecordsUpserted(n int) {
	if recordsUpsertedCounter == nil {
		return
	}
	recordsUpsertedCounter.Add(float64(n))
}

func IncrementIngestDayFailed() {
	if ingestDaysFailedCounter == nil {
		return
	}
	ingestDaysFailedCounter.Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

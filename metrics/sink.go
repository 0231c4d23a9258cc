package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SinkRecordsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "strata_sink_records_written_total",
		Help: "Total number of records written into open files, by topic",
	}, []string{"topic"})

	SinkFilesCommitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "strata_sink_files_committed_total",
		Help: "Total number of files committed to the object store, by topic",
	}, []string{"topic"})

	SinkBytesCommitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "strata_sink_bytes_committed_total",
		Help: "Total bytes committed to the object store, by topic",
	}, []string{"topic"})

	SinkCommitFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "strata_sink_commit_failures_total",
		Help: "Total number of object store commits that failed and will be retried, by topic",
	}, []string{"topic"})

	SinkRollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "strata_sink_rollbacks_total",
		Help: "Total number of partition rollbacks, by topic",
	}, []string{"topic"})

	SinkOpenFiles = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "strata_sink_open_files",
		Help: "Number of open files buffering records, by topic",
	}, []string{"topic"})

	SinkCommitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "strata_sink_commit_duration_seconds",
		Help:    "Time taken to store one file in the object store, by topic",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(SinkRecordsWritten, SinkFilesCommitted, SinkBytesCommitted,
		SinkCommitFailures, SinkRollbacks, SinkOpenFiles, SinkCommitDuration)
}

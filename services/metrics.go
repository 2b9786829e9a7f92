package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncRunsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timetable_sync_runs_total",
			Help: "Total number of sync runs by outcome.",
		},
		[]string{"outcome"},
	)
	tablesWrittenCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timetable_tables_written_total",
			Help: "Total number of timetable files written.",
		},
	)
	tablesSkippedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timetable_tables_skipped_total",
			Help: "Total number of recognized tables that could not be extracted.",
		},
	)
	documentFailuresCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timetable_document_failures_total",
			Help: "Total number of selected documents that yielded no tables.",
		},
	)
	candidatesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "timetable_candidates",
			Help: "Number of candidate documents found by the last sync run.",
		},
	)
	lastSuccessGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "timetable_last_success_timestamp_seconds",
			Help: "Unix time of the last sync run that found candidates.",
		},
	)
	syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timetable_sync_duration_seconds",
			Help:    "Duration of sync runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(
		syncRunsCounter,
		tablesWrittenCounter,
		tablesSkippedCounter,
		documentFailuresCounter,
		candidatesGauge,
		lastSuccessGauge,
		syncDuration,
	)
}

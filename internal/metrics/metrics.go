// Package metrics holds the prometheus collectors emiscope exports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Mismatch kinds used as the "kind" label of SchemaMismatch.
const (
	MismatchMissingColumn = "missing_column"
	MismatchExtraColumn   = "extra_column"
	MismatchUnseenLevel   = "unseen_level"
	MismatchUnmappedField = "unmapped_field"
	MismatchModelSchema   = "model_schema"
)

var (
	SchemaMismatch = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emiscope_schema_mismatch_total",
			Help: "Row/schema disagreements resolved by zero-fill or drop",
		},
		[]string{"kind"},
	)

	Predictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emiscope_predictions_total",
			Help: "Predictions served, by task and outcome",
		},
		[]string{"task", "outcome"},
	)

	PredictionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emiscope_prediction_duration_seconds",
			Help:    "Time spent transforming and predicting one profile",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
		},
		[]string{"task"},
	)

	PredictionCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emiscope_prediction_cache_total",
			Help: "Prediction cache lookups by result",
		},
		[]string{"result"},
	)

	RunsLoaded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "emiscope_experiment_runs",
			Help: "Experiment runs seen on the last poll, by run type",
		},
		[]string{"type"},
	)
)

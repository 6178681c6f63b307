package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pump_status"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	RecordsLoaded prometheus.Gauge
	Queries       *prometheus.CounterVec // labels: endpoint={wells,status,by_year,options}
	StatsCache    *prometheus.CounterVec // labels: result={hit,miss}

	// Prediction metrics.
	Predictions        *prometheus.CounterVec // labels: status_group
	RowErrors          *prometheus.CounterVec // labels: kind={validation,schema,not_found}
	PredictionFailures prometheus.Counter
	PredictDuration    prometheus.Histogram

	// Classifier backend metrics.
	ClassifierCache  *prometheus.CounterVec // labels: result={hit,miss}
	ModelAPIDuration *prometheus.HistogramVec // labels: endpoint={schema,predict_proba}

	// Scoring pipeline metrics.
	MessagesConsumed        prometheus.Counter
	MessagesProduced        prometheus.Counter
	DecodeErrors            prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RecordsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_loaded",
			Help:      "Number of pump records held in the record store.",
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Exploration queries served, by endpoint.",
		}, []string{"endpoint"}),
		StatsCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_cache_total",
			Help:      "Aggregate response cache lookups by result.",
		}, []string{"result"}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predicted rows by status group.",
		}, []string{"status_group"}),
		RowErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_row_errors_total",
			Help:      "Rows rejected before reaching the classifier, by kind.",
		}, []string{"kind"}),
		PredictionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_failures_total",
			Help:      "Batches failed by the classifier or its output validation.",
		}),
		PredictDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "predict_duration_seconds",
			Help:      "Duration of a prediction batch from alignment to labels.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}),
		ClassifierCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_cache_total",
			Help:      "Classifier row cache lookups by result.",
		}, []string{"result"}),
		ModelAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_api_duration_seconds",
			Help:      "Remote model server request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"endpoint"}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from the source topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total messages written to the sink topic.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Source messages that could not be decoded into a pump record.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the scoring pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-predict-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}

	prometheus.MustRegister(
		m.RecordsLoaded,
		m.Queries,
		m.StatsCache,
		m.Predictions,
		m.RowErrors,
		m.PredictionFailures,
		m.PredictDuration,
		m.ClassifierCache,
		m.ModelAPIDuration,
		m.MessagesConsumed,
		m.MessagesProduced,
		m.DecodeErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	)

	return m
}

// NewUnregisteredMetrics creates Metrics outside any registry. Tests and
// one-shot commands use it to avoid "already registered" panics.
func NewUnregisteredMetrics() *Metrics {
	return &Metrics{
		RecordsLoaded:           prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "records_loaded"}),
		Queries:                 prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "queries_total"}, []string{"endpoint"}),
		StatsCache:              prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "stats_cache_total"}, []string{"result"}),
		Predictions:             prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "predictions_total"}, []string{"status_group"}),
		RowErrors:               prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "prediction_row_errors_total"}, []string{"kind"}),
		PredictionFailures:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "prediction_failures_total"}),
		PredictDuration:         prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "predict_duration_seconds"}),
		ClassifierCache:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "classifier_cache_total"}, []string{"result"}),
		ModelAPIDuration:        prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "model_api_duration_seconds"}, []string{"endpoint"}),
		MessagesConsumed:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_consumed_total"}),
		MessagesProduced:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_produced_total"}),
		DecodeErrors:            prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "decode_errors_total"}),
		PipelineRunning:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}),
		BatchSize:               prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_size"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_processing_duration_seconds"}),
	}
}

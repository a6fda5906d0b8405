package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/reviewstore/services/reviews/internal/repo"
	"github.com/reviewstore/services/reviews/internal/serializer"
)

// Exporter exports service metrics to Prometheus.
type Exporter struct {
	serializations      *prometheus.CounterVec
	serializationErrors *prometheus.CounterVec
	eventsPublished     *prometheus.CounterVec
	eventFailures       *prometheus.CounterVec
	grpcRequests        *prometheus.CounterVec
	grpcDuration        *prometheus.HistogramVec
	entities            *prometheus.GaugeVec
}

// NewExporter registers the metrics with reg.
func NewExporter(reg prometheus.Registerer) *Exporter {
	factory := promauto.With(reg)
	return &Exporter{
		serializations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviews_serializations_total",
				Help: "Total number of successful serializations by root kind",
			},
			[]string{"kind"},
		),
		serializationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviews_serialization_errors_total",
				Help: "Total number of failed serializations by root kind and error class",
			},
			[]string{"kind", "class"},
		),
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviews_events_published_total",
				Help: "Total number of domain events published",
			},
			[]string{"event_type"},
		),
		eventFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviews_event_failures_total",
				Help: "Total number of domain events that could not be published",
			},
			[]string{"event_type"},
		),
		grpcRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviews_grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"method", "code"},
		),
		grpcDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reviews_grpc_request_duration_seconds",
				Help:    "Duration of gRPC requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"method"},
		),
		entities: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reviews_entities",
				Help: "Current number of stored records by kind",
			},
			[]string{"kind"},
		),
	}
}

// RecordSerialization records the outcome of one Serialize call.
func (e *Exporter) RecordSerialization(kind serializer.Kind, err error) {
	if err == nil {
		e.serializations.WithLabelValues(string(kind)).Inc()
		return
	}
	e.serializationErrors.WithLabelValues(string(kind), ErrorClass(err)).Inc()
}

// RecordEvent records a publish attempt.
func (e *Exporter) RecordEvent(eventType string, err error) {
	if err != nil {
		e.eventFailures.WithLabelValues(eventType).Inc()
		return
	}
	e.eventsPublished.WithLabelValues(eventType).Inc()
}

// RecordRequest records a finished gRPC request.
func (e *Exporter) RecordRequest(method, code string, durationSeconds float64) {
	e.grpcRequests.WithLabelValues(method, code).Inc()
	e.grpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// UpdateStats sets the entity gauges.
// This should be called periodically.
func (e *Exporter) UpdateStats(stats repo.Stats) {
	e.entities.WithLabelValues("customer").Set(float64(stats.Customers))
	e.entities.WithLabelValues("item").Set(float64(stats.Items))
	e.entities.WithLabelValues("review").Set(float64(stats.Reviews))
}

// ErrorClass maps an error to a low-cardinality label.
func ErrorClass(err error) string {
	switch {
	case errors.Is(err, serializer.ErrUnresolvedRelation):
		return "unresolved_relation"
	case errors.Is(err, serializer.ErrSerializationCycle):
		return "cycle"
	case errors.Is(err, serializer.ErrInvalidRule):
		return "invalid_rule"
	case errors.Is(err, repo.ErrReferentialIntegrity):
		return "referential_integrity"
	case errors.Is(err, repo.ErrCustomerNotFound), errors.Is(err, repo.ErrItemNotFound), errors.Is(err, repo.ErrReviewNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

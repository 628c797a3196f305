package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "bookgraph"
	subsystem = "graphql"

	// DefaultMaxOperationNames bounds the distinct operation_name label values.
	DefaultMaxOperationNames = 100

	// OtherOperationName labels named operations seen after the bound is reached.
	OtherOperationName = "__other__"
)

var _ interface {
	graphql.HandlerExtension
	graphql.ResponseInterceptor
} = (*Metrics)(nil)

// Metrics records GraphQL operations handled by the gqlgen server.
type Metrics struct {
	operationInFlight *prometheus.GaugeVec
	operationCount    *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec

	mu                sync.Mutex
	operationNames    map[string]struct{}
	maxOperationNames int
}

// New registers the operation collectors on reg.
// operation_name comes from clients, so only the first DefaultMaxOperationNames distinct
// names get their own label value and later ones share OtherOperationName.
func New(reg prometheus.Registerer) *Metrics {
	return NewWithLimit(reg, DefaultMaxOperationNames)
}

func NewWithLimit(reg prometheus.Registerer, maxOperationNames int) *Metrics {
	factory := promauto.With(reg)
	operationLabels := []string{"operation_type", "operation_name"}

	return &Metrics{
		operationNames:    map[string]struct{}{},
		maxOperationNames: maxOperationNames,
		operationInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_in_flight",
			Help:      "Number of graphql operations currently handled by this server.",
		}, operationLabels),
		operationCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operation_total",
			Help:      "Counter of graphql operations served.",
		}, operationLabels),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Histogram of GraphQL operations execution duration.",
			Buckets:   prometheus.DefBuckets,
		}, operationLabels),
		operationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operation_errors_total",
			Help:      "Counter of graphql errors returned in responses.",
		}, operationLabels),
	}
}

func (m *Metrics) ExtensionName() string {
	return "PrometheusMetrics"
}

func (m *Metrics) Validate(schema graphql.ExecutableSchema) error {
	return nil
}

func (m *Metrics) InterceptResponse(ctx context.Context, next graphql.ResponseHandler) *graphql.Response {
	if !graphql.HasOperationContext(ctx) {
		return next(ctx)
	}

	labels := m.OperationLabels(graphql.GetOperationContext(ctx))

	m.operationCount.With(labels).Inc()
	m.operationInFlight.With(labels).Inc()
	defer m.operationInFlight.With(labels).Dec()

	start := time.Now()
	resp := next(ctx)
	m.operationDuration.With(labels).Observe(time.Since(start).Seconds())

	if resp != nil && len(resp.Errors) != 0 {
		m.operationErrors.With(labels).Add(float64(len(resp.Errors)))
	}

	return resp
}

// OperationLabels returns the label set for oc.
// Anonymous operations are labelled with an empty name.
func (m *Metrics) OperationLabels(oc *graphql.OperationContext) prometheus.Labels {
	var operationType string
	operationName := oc.OperationName
	if oc.Operation != nil {
		operationType = string(oc.Operation.Operation)
		if oc.Operation.Name != "" {
			operationName = oc.Operation.Name
		}
	}

	return prometheus.Labels{
		"operation_type": operationType,
		"operation_name": m.boundedName(operationName),
	}
}

func (m *Metrics) boundedName(name string) string {
	if name == "" {
		return ""
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.operationNames[name]; ok {
		return name
	}
	if len(m.operationNames) >= m.maxOperationNames {
		return OtherOperationName
	}
	m.operationNames[name] = struct{}{}

	return name
}

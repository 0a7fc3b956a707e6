package instrument

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the Prometheus-backed Instrumenter.
type Metrics struct {
	OperationDuration *prometheus.HistogramVec
	OperationsTotal   *prometheus.CounterVec
	MutatedRecords    *prometheus.CounterVec
	ImportItems       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Passing prometheus.DefaultRegisterer exposes them on promhttp.Handler().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "racecal_operation_duration_seconds",
				Help:    "Duration of engine operations in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"component", "action", "entity"},
		),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racecal_operations_total",
				Help: "Total number of engine operations by status",
			},
			[]string{"component", "action", "entity", "status"},
		),
		MutatedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racecal_bulk_mutated_records_total",
				Help: "Records changed by bulk mutations",
			},
			[]string{"entity", "kind"},
		),
		ImportItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racecal_import_items_total",
				Help: "Import items by outcome",
			},
			[]string{"entity", "outcome", "dry_run"},
		),
	}
	reg.MustRegister(m.OperationDuration, m.OperationsTotal, m.MutatedRecords, m.ImportItems)
	return m
}

func (m *Metrics) StartSpan(ctx context.Context, component, action string) (context.Context, Span) {
	return ctx, &promSpan{m: m, component: component, action: action, status: "ok", start: time.Now()}
}

func (m *Metrics) CountMutation(entity, kind string, records int) {
	m.MutatedRecords.WithLabelValues(entity, kind).Add(float64(records))
}

func (m *Metrics) CountImport(entity, outcome string, items int, dryRun bool) {
	if items == 0 {
		return
	}
	m.ImportItems.WithLabelValues(entity, outcome, strconv.FormatBool(dryRun)).Add(float64(items))
}

type promSpan struct {
	m         *Metrics
	component string
	action    string
	entity    string
	status    string
	start     time.Time
	once      sync.Once
}

func (s *promSpan) SetStatus(status string) { s.status = status }
func (s *promSpan) SetEntity(entity string) { s.entity = entity }

func (s *promSpan) End() {
	s.once.Do(func() {
		s.m.OperationDuration.WithLabelValues(s.component, s.action, s.entity).Observe(time.Since(s.start).Seconds())
		s.m.OperationsTotal.WithLabelValues(s.component, s.action, s.entity, s.status).Inc()
	})
}

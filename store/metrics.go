package store

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/reoring/docbind/document"
)

// Metrics holds the collectors recorded by an instrumented store.
type Metrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewMetrics registers the store collectors with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docbind_store_operations_total",
			Help: "Total number of document store operations by outcome",
		}, []string{"op", "outcome"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docbind_store_operation_duration_seconds",
			Help:    "Latency of document store operations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"op"}),
	}
}

// Instrument wraps s so every call is counted and timed.
func Instrument(s Store, m *Metrics) Store {
	return &instrumented{next: s, m: m}
}

type instrumented struct {
	next Store
	m    *Metrics
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.m.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	i.m.Operations.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnknownClass):
		return "unknown_class"
	case errors.Is(err, ErrClassExists):
		return "class_exists"
	}
	return "error"
}

func (i *instrumented) Save(ctx context.Context, doc *document.Document) (id document.ID, err error) {
	defer func(start time.Time) { i.observe("save", start, err) }(time.Now())
	return i.next.Save(ctx, doc)
}

func (i *instrumented) Fetch(ctx context.Context, id document.ID) (doc *document.Document, err error) {
	defer func(start time.Time) { i.observe("fetch", start, err) }(time.Now())
	return i.next.Fetch(ctx, id)
}

func (i *instrumented) Query(ctx context.Context, q string) (docs []*document.Document, err error) {
	defer func(start time.Time) { i.observe("query", start, err) }(time.Now())
	return i.next.Query(ctx, q)
}

func (i *instrumented) DeclareType(ctx context.Context, c Class) (err error) {
	defer func(start time.Time) { i.observe("declare_type", start, err) }(time.Now())
	return i.next.DeclareType(ctx, c)
}

func (i *instrumented) DropType(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { i.observe("drop_type", start, err) }(time.Now())
	return i.next.DropType(ctx, name)
}

func (i *instrumented) Classes(ctx context.Context) (cs []Class, err error) {
	defer func(start time.Time) { i.observe("classes", start, err) }(time.Now())
	return i.next.Classes(ctx)
}

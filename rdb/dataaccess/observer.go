package dataaccess

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type metrics struct {
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	activeOperations  *prometheus.GaugeVec
}

func newMetrics(name string, registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		operationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_operations_total",
				Help: "Total number of data access operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_operation_duration_seconds",
				Help:    "Duration of data access operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		),
		activeOperations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_operations",
				Help: "Number of in-flight data access operations",
			},
			[]string{"operation"},
		),
	}

	var err error
	if m.operationCounter, err = register(registerer, m.operationCounter); err != nil {
		return nil, err
	}
	if m.operationDuration, err = register(registerer, m.operationDuration); err != nil {
		return nil, err
	}
	if m.activeOperations, err = register(registerer, m.activeOperations); err != nil {
		return nil, err
	}
	return m, nil
}

// register 同名指标已注册时复用已有的
func register[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "register metrics failed")
	}
	return c, nil
}

// observer 为每个操作记录指标和 span，两者都是可选的
type observer struct {
	name    string
	metrics *metrics
	tracer  trace.Tracer
}

func (o *observer) observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	if o == nil || (o.metrics == nil && o.tracer == nil) {
		return fn(ctx)
	}

	start := time.Now()

	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "dataaccess."+operation,
			trace.WithAttributes(
				attribute.String("component", o.name),
				attribute.String("operation", operation),
			),
		)
		defer span.End()
	}

	if o.metrics != nil {
		o.metrics.activeOperations.WithLabelValues(operation).Inc()
		defer o.metrics.activeOperations.WithLabelValues(operation).Dec()
	}

	err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if o.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		o.metrics.operationCounter.WithLabelValues(operation, status).Inc()
		o.metrics.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}
	return err
}

func newTracer(name string) trace.Tracer {
	return otel.Tracer("dataaccess." + name)
}

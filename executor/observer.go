package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/hatlonely/dbq/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObserverOptions struct {
	// EnableMetrics 是否启用指标收集
	EnableMetrics bool `cfg:"enableMetrics" def:"true"`

	// EnableLogging 是否记录每条语句
	EnableLogging bool `cfg:"enableLogging" def:"false"`

	// EnableTracing 是否启用分布式追踪
	EnableTracing bool `cfg:"enableTracing" def:"false"`

	// Name 作为指标名前缀和 span 的 component 属性
	Name string `cfg:"name" def:"dbq"`
}

// Metrics 语句执行指标
type Metrics struct {
	statementCounter  *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
	activeStatements  *prometheus.GaugeVec
	rowsHistogram     *prometheus.HistogramVec
}

// NewMetrics 创建并注册指标，同名指标已经注册时复用已有的
func NewMetrics(name string, registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	var err error
	if m.statementCounter, err = register(registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name + "_statements_total",
			Help: "Total number of executed statements",
		},
		[]string{"operation", "status"},
	)); err != nil {
		return nil, err
	}
	if m.statementDuration, err = register(registerer, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_statement_duration_seconds",
			Help:    "Duration of statements in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"operation"},
	)); err != nil {
		return nil, err
	}
	if m.activeStatements, err = register(registerer, prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name + "_active_statements",
			Help: "Number of statements in flight",
		},
		[]string{"operation"},
	)); err != nil {
		return nil, err
	}
	if m.rowsHistogram, err = register(registerer, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_rows",
			Help:    "Rows returned or affected by a statement",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"operation"},
	)); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "prometheus register failed")
	}
	return c, nil
}

// Observer 为语句执行添加指标、追踪和日志
type Observer struct {
	name    string
	metrics *Metrics
	tracer  trace.Tracer
	logger  log.Logger
}

func NewObserverWithOptions(options *ObserverOptions, registerer prometheus.Registerer, logger log.Logger) (*Observer, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	obs := &Observer{name: options.Name}
	if options.EnableMetrics {
		metrics, err := NewMetrics(options.Name, registerer)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create metrics")
		}
		obs.metrics = metrics
	}
	if options.EnableTracing {
		obs.tracer = otel.Tracer(fmt.Sprintf("executor.%s", options.Name))
	}
	if options.EnableLogging && logger != nil {
		obs.logger = logger.WithGroup("observer")
	}
	return obs, nil
}

// observe fn 返回受影响或读取的行数
func (o *Observer) observe(ctx context.Context, operation string, query string, fn func(context.Context) (int64, error)) error {
	if o == nil {
		_, err := fn(ctx)
		return err
	}

	start := time.Now()

	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, fmt.Sprintf("executor.%s", operation),
			trace.WithAttributes(
				attribute.String("component", o.name),
				attribute.String("operation", operation),
				attribute.String("db.statement", query),
			),
		)
		defer span.End()
	}

	if o.metrics != nil {
		o.metrics.activeStatements.WithLabelValues(operation).Inc()
		defer o.metrics.activeStatements.WithLabelValues(operation).Dec()
	}

	rows, err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		span.SetAttributes(
			attribute.Int64("duration_ms", duration.Milliseconds()),
			attribute.Int64("rows", rows),
		)
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
		o.metrics.statementCounter.WithLabelValues(operation, status).Inc()
		o.metrics.statementDuration.WithLabelValues(operation).Observe(duration.Seconds())
		if err == nil {
			o.metrics.rowsHistogram.WithLabelValues(operation).Observe(float64(rows))
		}
	}

	if o.logger != nil {
		if err != nil {
			o.logger.ErrorContext(ctx, "statement failed",
				"operation", operation,
				"sql", query,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			o.logger.InfoContext(ctx, "statement completed",
				"operation", operation,
				"sql", query,
				"rows", rows,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}

	return err
}

// Package telemetry exports traces, metrics and logs over OTLP/gRPC when the
// telemetry section of the config enables it.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Config struct {
	Enabled        bool          `yaml:"enabled" default:"false"`
	Endpoint       string        `yaml:"endpoint" default:"localhost:4317" validate:"required,hostname_port"`
	Insecure       bool          `yaml:"insecure" default:"true"`
	ServiceName    string        `yaml:"service_name" default:"agentflow" validate:"required"`
	MetricInterval time.Duration `yaml:"metric_interval" default:"30s" validate:"gte=1s"`
	ExportLogs     bool          `yaml:"export_logs" default:"true"`
}

// Provider owns the SDK providers installed by Setup.
type Provider struct {
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
	logger *sdklog.LoggerProvider
}

// Setup installs global tracer and meter providers backed by OTLP exporters.
// With telemetry disabled it returns an empty Provider and the runtime keeps
// using the no-op globals.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{}
	if !cfg.Enabled {
		return p, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	p.tracer = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("metric exporter: %w", err), p.Shutdown(ctx))
	}
	p.meter = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.MetricInterval))),
		sdkmetric.WithResource(res),
	)

	if cfg.ExportLogs {
		logExporter, err := otlploggrpc.New(ctx, logOpts...)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("log exporter: %w", err), p.Shutdown(ctx))
		}
		p.logger = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
			sdklog.WithResource(res),
		)
	}

	otel.SetTracerProvider(p.tracer)
	otel.SetMeterProvider(p.meter)
	return p, nil
}

// Handler returns base, teed into the OTLP log pipeline when logs are exported.
func (p *Provider) Handler(base slog.Handler) slog.Handler {
	if p == nil || p.logger == nil {
		return base
	}
	return Fanout(base, otelslog.NewHandler("agentflow", otelslog.WithLoggerProvider(p.logger)))
}

// Shutdown flushes and stops every provider that was started.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.logger != nil {
		errs = append(errs, p.logger.Shutdown(ctx))
	}
	if p.meter != nil {
		errs = append(errs, p.meter.Shutdown(ctx))
	}
	if p.tracer != nil {
		errs = append(errs, p.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

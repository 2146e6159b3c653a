package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config names the OTLP collector endpoint this daemon exports to.
type Config struct {
	Endpoint       string
	ExportInterval time.Duration
	Insecure       bool
}

// Provider wraps an sdk/metric.MeterProvider and its exporter so the
// caller can Shutdown both together.
type Provider struct {
	mp *sdkmetric.MeterProvider
}

// NewProvider dials cfg.Endpoint and builds a MeterProvider that
// periodically pushes every registered instrument's readings there.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("metrics: build otlp exporter: %w", err)
	}

	interval := cfg.ExportInterval
	if interval == 0 {
		interval = 15 * time.Second
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName("aabundler")))
	if err != nil {
		return nil, fmt.Errorf("metrics: build resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp)
	return &Provider{mp: mp}, nil
}

// Meter returns a named meter from this provider's MeterProvider.
func (p *Provider) Meter(name string) metric.Meter {
	return p.mp.Meter(name)
}

// Shutdown flushes pending metrics and closes the exporter connection.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}

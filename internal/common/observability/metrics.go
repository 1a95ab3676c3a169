package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	quoteCounter  otelmetric.Int64Counter
	quoteDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		log.Printf("Failed to build resource: %v", err)
		res = resource.Default()
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	quoteCounter, _ := meter.Int64Counter(
		"quotes.generated",
		otelmetric.WithDescription("Number of group quotes generated"),
	)

	quoteDuration, _ := meter.Float64Histogram(
		"quotes.duration",
		otelmetric.WithDescription("Group quote generation duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		quoteCounter:  quoteCounter,
		quoteDuration: quoteDuration,
	}
}

func (o *Observability) RecordQuoteGenerated(ctx context.Context, status string) {
	if o.quoteCounter != nil {
		o.quoteCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordQuoteDuration(ctx context.Context, duration time.Duration, status string) {
	if o.quoteDuration != nil {
		o.quoteDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}

package main

import (
	"context"
	"time"

	"github.com/EnzoRigon/udp-client-server/internal/config"
	"github.com/n0needt0/go-goodies/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const defaultCollector = "localhost:4317"

// relayAttributes describes this relay instance to the collector.
func relayAttributes(conf *config.Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(conf.App.Name),
		semconv.NetHostIPKey.String(conf.Relay.IP),
		semconv.NetHostPortKey.Int(conf.Relay.Port),
		semconv.NetTransportKey.String("IP.UDP"),
		attribute.Int("relay.datagram_size_bytes", conf.Relay.DatagramSizeBytes),
		attribute.Int("relay.fanout_workers", conf.Relay.FanoutWorkers),
	}
	if conf.App.Version != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(conf.App.Version))
	}
	if conf.App.Env != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(conf.App.Env))
	}
	return attrs
}

// InitOtelProvider installs a global meter provider pushing relay and client counters
// to the collector. The returned func flushes and stops it.
func InitOtelProvider(conf *config.Config) func() {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(relayAttributes(conf)...),
	)
	if err != nil {
		log.Warnf("otel resource is partial: %v", err)
	}

	endpoint := conf.Otel.Endpoint
	if endpoint == "" {
		endpoint = defaultCollector
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithEndpoint(endpoint),
	)
	if err != nil {
		log.Errorf("relay metrics disabled, no exporter for %s: %v", endpoint, err)
		return func() {}
	}

	reader := sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(time.Duration(conf.Otel.ScrapeIntervalSeconds)*time.Second),
	)
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(provider)

	log.Infof("exporting relay metrics to %s every %ds", endpoint, conf.Otel.ScrapeIntervalSeconds)

	return func() {
		flushCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		if err := provider.Shutdown(flushCtx); err != nil {
			log.Errorf("failed to flush relay metrics: %v", err)
		}
	}
}

// Package tracing configures OpenTelemetry traces and meters for the server.
package tracing

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

// Exporter names.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config selects where spans go.
type Config struct {
	ServiceName  string `yaml:"service_name" env:"VOCHAT_SERVICE_NAME"`
	Environment  string `yaml:"environment" env:"VOCHAT_ENVIRONMENT"`
	Exporter     string `yaml:"exporter" env:"VOCHAT_TRACE_EXPORTER"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"VOCHAT_OTLP_ENDPOINT"`
	OTLPInsecure bool   `yaml:"otlp_insecure" env:"VOCHAT_OTLP_INSECURE"`

	// Writer receives stdout spans; os.Stdout when nil.
	Writer io.Writer `yaml:"-" env:"-"`
	// Registerer receives meter instruments; prometheus.DefaultRegisterer when nil.
	Registerer prometheus.Registerer `yaml:"-" env:"-"`
}

// DefaultConfig exports nothing.
func DefaultConfig() Config {
	return Config{ServiceName: "vochat-server", Environment: "development", Exporter: ExporterNone}
}

// Init installs global tracer and meter providers and returns their shutdown.
func Init(ctx context.Context, cfg Config, logger zerolog.Logger) (func(context.Context) error, error) {
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = DefaultConfig().ServiceName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	tp, err := initTracer(ctx, cfg, res, logger)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)

	mp, err := initMeter(cfg, res, logger)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}, nil
}

func initTracer(ctx context.Context, cfg Config, res *resource.Resource, logger zerolog.Logger) (*sdktrace.TracerProvider, error) {
	exporter := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	if exporter == "" && strings.TrimSpace(cfg.OTLPEndpoint) != "" {
		exporter = ExporterOTLP
	}

	switch exporter {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("exporter", "otlp").Str("endpoint", cfg.OTLPEndpoint).Msg("tracing initialized")
		return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res)), nil
	case ExporterStdout:
		out := cfg.Writer
		if out == nil {
			out = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		logger.Info().Str("exporter", "stdout").Msg("tracing initialized")
		return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res)), nil
	default:
		logger.Debug().Msg("tracing disabled")
		return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), nil
	}
}

func initMeter(cfg Config, res *resource.Resource, logger zerolog.Logger) (*sdkmetric.MeterProvider, error) {
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	exp, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		logger.Warn().Err(err).Msg("prometheus meter exporter unavailable")
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp), sdkmetric.WithResource(res)), nil
}

package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "mcp-lens"

var (
	// globalMutex protects access to global tracer variables
	globalMutex sync.RWMutex
	// global tracer instance
	globalTracer trace.Tracer
	// global tracer provider for shutdown
	globalTracerProvider *sdktrace.TracerProvider
	// is tracing enabled
	tracingEnabled bool
)

// otelErrorHandler adapts OTEL SDK errors to our logging system
// This prevents OTEL from logging to stderr, which would break stdio protocol
type otelErrorHandler struct {
	logger *logrus.Logger
}

func (h *otelErrorHandler) Handle(err error) {
	if err == nil {
		return
	}
	h.logger.WithError(err).Debug("OTEL: SDK error occurred")
}

// InitTracer initialises the OpenTelemetry tracer based on environment variables
// Returns a shutdown function and an error if initialisation fails.
// The application can continue with a noop tracer even if initialisation fails.
func InitTracer(logger *logrus.Logger) (func() error, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	noopShutdown := func() error { return nil }

	if isDisabled := os.Getenv("OTEL_SDK_DISABLED"); strings.ToLower(isDisabled) == "true" {
		logger.Debug("OTEL: Explicitly disabled via OTEL_SDK_DISABLED")
		globalTracer = noop.NewTracerProvider().Tracer(tracerName)
		tracingEnabled = false
		return noopShutdown, nil
	}

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		logger.Debug("OTEL: Not configured (OTEL_EXPORTER_OTLP_ENDPOINT not set), using noop tracer")
		globalTracer = noop.NewTracerProvider().Tracer(tracerName)
		tracingEnabled = false
		return noopShutdown, nil
	}

	logger.WithField("endpoint", SanitiseURL(endpoint)).Info("OTEL: Initialising tracer")
	otel.SetErrorHandler(&otelErrorHandler{logger: logger})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The exporter reads the endpoint and headers from the standard OTEL_* variables
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		logger.WithError(err).Warn("OTEL: Failed to create exporter, falling back to noop tracer")
		globalTracer = noop.NewTracerProvider().Tracer(tracerName)
		tracingEnabled = false
		return noopShutdown, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", getServiceName()),
			attribute.String("service.version", getServiceVersion()),
		),
		resource.WithFromEnv(),
	)
	if err != nil {
		logger.WithError(err).Warn("OTEL: Failed to create resource, using default")
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	globalTracer = tp.Tracer(tracerName)
	globalTracerProvider = tp
	tracingEnabled = true

	logger.Info("OTEL: Tracer initialised successfully")

	return func() error {
		globalMutex.Lock()
		defer globalMutex.Unlock()

		if globalTracerProvider == nil {
			return nil
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := globalTracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("OTEL: Failed to shutdown tracer provider")
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
		globalTracerProvider = nil
		tracingEnabled = false
		logger.Debug("OTEL: Tracer provider shutdown successfully")
		return nil
	}, nil
}

// GetTracer returns the global tracer instance
// Returns a noop tracer if not initialised
func GetTracer() trace.Tracer {
	globalMutex.RLock()
	defer globalMutex.RUnlock()

	if globalTracer == nil {
		return noop.NewTracerProvider().Tracer(tracerName)
	}
	return globalTracer
}

// IsEnabled returns true if tracing is enabled
func IsEnabled() bool {
	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return tracingEnabled
}

// StartSearchSpan starts a span for one reverse image search. mode is "file" or "url".
// The caller MUST call EndSearchSpan when done.
func StartSearchSpan(ctx context.Context, mode, target string) (context.Context, trace.Span) {
	if !IsEnabled() {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := GetTracer().Start(ctx, SpanNameSearch,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrSearchMode, mode),
			attribute.String(AttrSearchTarget, TruncateString(SanitiseTarget(mode, target), maxAttributeSize)),
		),
	)
	return ctx, span
}

// EndSearchSpan records the outcome of a search and ends the span
func EndSearchSpan(span trace.Span, matched bool, similar int, err error) {
	if span == nil {
		return
	}

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(AttrSearchError, err.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(
			attribute.Bool(AttrSearchMatchFound, matched),
			attribute.Int(AttrSearchSimilarCount, similar),
		)
	}
	span.End()
}

// StartToolSpan creates a new span for an MCP tool execution
// The caller MUST call EndToolSpan when done.
func StartToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	if !IsEnabled() {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := GetTracer().Start(ctx, SpanNameToolExecute,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String(AttrMCPToolName, toolName)),
	)
	return ctx, span
}

// EndToolSpan ends a tool execution span with success or error
func EndToolSpan(span trace.Span, err error) {
	if span == nil {
		return
	}

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.Bool(AttrMCPToolSuccess, false),
			attribute.String(AttrMCPToolError, err.Error()),
		)
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Bool(AttrMCPToolSuccess, true))
	}

	span.End()
}

func getServiceName() string {
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		return name
	}
	return tracerName
}

func getServiceVersion() string {
	if version := os.Getenv("OTEL_SERVICE_VERSION"); version != "" {
		return version
	}
	return "dev"
}

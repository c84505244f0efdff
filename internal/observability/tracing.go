package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jkaninda/shellguide/internal/config"
	"github.com/jkaninda/shellguide/internal/executor"
)

const defaultServiceName = "shellguide"

// spanRun is the span wrapping one learner command line.
const spanRun = "shellguide.run"

// Span attributes of a command run. Learner input never becomes an
// attribute verbatim; only its length and the allowlisted programs do.
const (
	attrCwd        = attribute.Key("shellguide.sandbox.cwd")
	attrLineLength = attribute.Key("shellguide.line.length")
	attrOperators  = attribute.Key("shellguide.line.operators")
	attrStatus     = attribute.Key("shellguide.run.status")
	attrSteps      = attribute.Key("shellguide.run.steps")
	attrPrograms   = attribute.Key("shellguide.run.programs")
	attrExitCode   = attribute.Key("shellguide.run.exit_code")
	attrTimedOut   = attribute.Key("shellguide.run.timed_out")
	attrRefusal    = attribute.Key("shellguide.run.refusal")
)

// TracerSetup holds the OTel TracerProvider and the tracer for command
// runs and HTTP requests. Not set as the global provider.
type TracerSetup struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracerSetup creates a TracerProvider exporting over OTLP. The
// resource carries the host and process that spawn sandbox commands.
func NewTracerSetup(cfg *config.TracingConfig) (*TracerSetup, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	ctx := context.Background()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceNamespaceKey.String(defaultServiceName),
		),
		resource.WithHost(),
		resource.WithProcessPID(),
		resource.WithProcessExecutableName(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		// A sampled HTTP request keeps the runs it triggers.
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)

	return &TracerSetup{
		provider: tp,
		tracer:   tp.Tracer(serviceName),
	}, nil
}

func newSpanExporter(ctx context.Context, cfg *config.TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	case "grpc", "":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported protocol %q", cfg.Protocol)
	}
}

// Tracer returns the tracer for creating spans.
func (t *TracerSetup) Tracer() trace.Tracer {
	if t == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return t.tracer
}

// Shutdown flushes any pending spans and shuts down the TracerProvider.
func (t *TracerSetup) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// runAttributes describes a request before it runs.
func runAttributes(req executor.Request) []attribute.KeyValue {
	cwd := req.Cwd
	if cwd == "" {
		cwd = "."
	}
	return []attribute.KeyValue{
		attrCwd.String(cwd),
		attrLineLength.Int(len(req.Line)),
		attrOperators.StringSlice([]string(req.Operators)),
	}
}

// resultAttributes describes what a run did.
func resultAttributes(res *executor.Result) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attrStatus.String(string(res.Status)),
		attrSteps.Int(len(res.Steps)),
	}
	if len(res.Steps) > 0 {
		programs := make([]string, len(res.Steps))
		for i, step := range res.Steps {
			programs[i] = stepLabel(step.Command)
		}
		last := res.Steps[len(res.Steps)-1]
		attrs = append(attrs,
			attrPrograms.StringSlice(programs),
			attrExitCode.Int(last.ExitCode),
			attrTimedOut.Bool(last.TimedOut),
		)
	}
	if res.Refused() && res.Err != nil {
		attrs = append(attrs, attrRefusal.String(refusalReason(res.Err)))
	}
	return attrs
}

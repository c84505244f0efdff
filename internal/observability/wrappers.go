package observability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/shellguide/internal/executor"
	"github.com/jkaninda/shellguide/internal/session"
	"github.com/jkaninda/shellguide/internal/validator"
)

// --- InstrumentedRunner ---

// InstrumentedRunner wraps an executor.Runner with metrics and tracing.
type InstrumentedRunner struct {
	inner   executor.Runner
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedRunner wraps a runner with observability.
func NewInstrumentedRunner(inner executor.Runner, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedRunner {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedRunner{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (r *InstrumentedRunner) Run(ctx context.Context, req executor.Request) (*executor.Result, error) {
	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.Start(ctx, spanRun, trace.WithAttributes(runAttributes(req)...))
		defer span.End()
	}

	start := time.Now()
	res, err := r.inner.Run(ctx, req)
	duration := time.Since(start).Seconds()

	status := "error"
	if res != nil {
		status = string(res.Status)
	}

	if span != nil {
		switch {
		case err != nil:
			span.SetAttributes(attrStatus.String(status))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case res != nil:
			span.SetAttributes(resultAttributes(res)...)
		}
	}

	if r.metrics != nil {
		r.metrics.ExecutionsTotal.WithLabelValues(status).Inc()
		r.metrics.ExecutionDuration.WithLabelValues(status).Observe(duration)
		if res != nil {
			if res.Refused() {
				r.metrics.RefusalsTotal.WithLabelValues(refusalReason(res.Err)).Inc()
			}
			for _, step := range res.Steps {
				r.metrics.StepsTotal.WithLabelValues(stepLabel(step.Command), string(step.Status)).Inc()
			}
		}
	}

	return res, err
}

// refusalReason maps a refusal error to a low-cardinality label.
func refusalReason(err error) string {
	var (
		opErr    *executor.BlockedOperatorError
		cmdErr   *executor.DisallowedCommandError
		pathErr  *executor.PathEscapeError
		parseErr *executor.ParseError
	)
	switch {
	case errors.As(err, &opErr):
		return "operator"
	case errors.As(err, &cmdErr):
		return "command"
	case errors.As(err, &pathErr):
		return "path"
	case errors.As(err, &parseErr):
		return "parse"
	default:
		return "other"
	}
}

// stepLabel keeps the command label bounded to the allowlist.
func stepLabel(name string) string {
	if executor.IsAllowed(name) {
		return name
	}
	return "other"
}

// --- SessionObserver ---

// SessionObserver records session lifecycle and attempt outcomes into
// metrics and the anomaly detector.
type SessionObserver struct {
	metrics *MetricsCollector
	anomaly *AnomalyDetector
}

// NewSessionObserver creates an observer. Both arguments may be nil.
func NewSessionObserver(metrics *MetricsCollector, anomaly *AnomalyDetector) *SessionObserver {
	return &SessionObserver{metrics: metrics, anomaly: anomaly}
}

func (o *SessionObserver) SessionOpened(string) {
	if o.metrics != nil {
		o.metrics.ActiveSessions.Inc()
	}
}

func (o *SessionObserver) ObserveAttempt(sessionID string, out *session.Outcome) {
	if out == nil {
		return
	}
	if o.metrics != nil {
		o.metrics.FeedbackTotal.WithLabelValues(out.Lesson, out.Feedback.Kind.String()).Inc()
		if out.Transition.LessonComplete {
			o.metrics.LessonsCompletedTotal.WithLabelValues(out.Lesson).Inc()
		}
		if out.Transition.RevealHint {
			o.metrics.HintsRevealedTotal.Inc()
		}
	}
	if out.Feedback.Kind == validator.KindBlocked {
		o.anomaly.RecordRefusal(sessionID)
	} else {
		o.anomaly.RecordAccepted(sessionID)
	}
}

func (o *SessionObserver) SessionClosed(sessionID string) {
	if o.metrics != nil {
		o.metrics.ActiveSessions.Dec()
	}
	o.anomaly.Forget(sessionID)
}

// --- Compile-time interface checks ---

var (
	_ executor.Runner  = (*InstrumentedRunner)(nil)
	_ session.Observer = (*SessionObserver)(nil)
)

// statusCode returns the HTTP status code as a string for metric labels.
func statusCode(code int) string {
	return strconv.Itoa(code)
}

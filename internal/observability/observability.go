// Package observability implements dispatch phase notifications: tracing
// spans, Prometheus metrics, and the human-readable summary line, layered
// over the Logger in logger.go.
package observability

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("rdistcc/dispatch")

// InitializeTracing installs a process-wide TracerProvider tagged with
// serviceName, so the spans Start/Note open are actually recorded rather
// than discarded by the default no-op provider. No exporter is attached:
// rdistcc has no collector endpoint of its own to ship to, so this just
// gives operators something to attach one to later without every span
// silently vanishing until then.
func InitializeTracing(serviceName string) func(context.Context) error {
	res := resource.NewSchemaless(semconv.ServiceName(serviceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

var (
	phaseSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "rdistcc_dispatch_phase_seconds",
		Help: "Time spent in each dispatch phase.",
	}, []string{"phase"})

	bytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rdistcc_dispatch_bytes_total",
		Help: "Bytes sent per token type during dispatch.",
	}, []string{"token"})
)

// MustRegister registers the dispatch metrics with reg. Call once at
// process startup. cmd/rdistcc does not call it and serves no /metrics
// endpoint.
func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(phaseSeconds, bytesTotal)
}

// Notifier is the observability surface the dispatch state machine calls
// into at each transition. It carries one root span per dispatch plus a
// logger and the job's identifying strings.
type Notifier struct {
	logger   *Logger
	rootCtx  context.Context
	rootSpan trace.Span
	hostname string
	input    string

	before time.Time
}

// Start opens the root span for one dispatch call and returns a Notifier
// bound to it. Call Finish when the dispatch completes.
func Start(ctx context.Context, logger *Logger, hostname, input string) (context.Context, *Notifier) {
	spanCtx, span := tracer.Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("rdistcc.hostname", hostname),
			attribute.String("rdistcc.input", input),
		))
	return spanCtx, &Notifier{
		logger:   logger,
		rootCtx:  spanCtx,
		rootSpan: span,
		hostname: hostname,
		input:    input,
		before:   time.Now(),
	}
}

// Note records a phase transition: a child span, a log line, and a
// metrics observation, tagged with the phase (CONNECT, SEND, CPP,
// COMPILE), the hostname and input filename, and whether the phase runs
// locally or remotely.
func (n *Notifier) Note(phase Phase, locality Locality) func() {
	_, span := tracer.Start(n.rootCtx, phase.String())
	start := time.Now()
	n.logger.Phase(phase, n.hostname, n.input, locality)
	return func() {
		phaseSeconds.WithLabelValues(phase.String()).Observe(time.Since(start).Seconds())
		span.End()
	}
}

// ObserveBytes records bytes shipped under a wire token tag, e.g. "DOTI".
func (n *Notifier) ObserveBytes(tag string, n64 int64) {
	bytesTotal.WithLabelValues(tag).Add(float64(n64))
}

// Summary logs a post-dispatch summary line: DOTI byte count, input
// filename, hostname, elapsed seconds, and throughput in kB/s, alongside
// a humanize-formatted companion for operators skimming logs.
func (n *Notifier) Summary(dotiBytes int64) {
	elapsed := time.Since(n.before)
	secs := elapsed.Seconds()
	var rate float64
	if secs > 0 {
		rate = float64(dotiBytes) / 1024 / secs
	}
	n.logger.Infof("%d bytes from %s compiled on %s in %.4fs, rate %.0fkB/s (%s in %s)",
		dotiBytes, n.input, n.hostname, secs, rate,
		humanize.Bytes(uint64(dotiBytes)), humanize.RelTime(n.before, time.Now(), "", ""))
}

// Finish closes the root span.
func (n *Notifier) Finish() {
	n.rootSpan.End()
}

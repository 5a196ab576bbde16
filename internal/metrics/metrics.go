// Package metrics records service telemetry through the OpenTelemetry
// metrics API. [InitProvider] bridges the instruments to Prometheus so they
// can be scraped from /metrics. Tests should build [Metrics] with their own
// [metric.MeterProvider].
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/amanullahtanweer/fluency-coach/internal/analysis"
)

const meterName = "github.com/amanullahtanweer/fluency-coach"

// Metrics holds the service's instruments. All fields are safe for
// concurrent use.
type Metrics struct {
	// Analyses counts analyses by status ("ok" or "failed").
	Analyses metric.Int64Counter

	// Disfluencies counts detected events by type.
	Disfluencies metric.Int64Counter

	// FluencyScore records the score of every successful analysis.
	FluencyScore metric.Float64Histogram

	// ASRDuration tracks speech recognition latency by provider and status.
	ASRDuration metric.Float64Histogram

	// ActiveSessions tracks live coaching calls.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks API latency by method, route and status.
	HTTPRequestDuration metric.Float64Histogram
}

var (
	scoreBuckets   = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
)

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Analyses, err = m.Int64Counter("fluency.analyses",
		metric.WithDescription("Total analyses by status."),
	); err != nil {
		return nil, err
	}
	if met.Disfluencies, err = m.Int64Counter("fluency.disfluencies",
		metric.WithDescription("Detected disfluencies by type."),
	); err != nil {
		return nil, err
	}
	if met.FluencyScore, err = m.Float64Histogram("fluency.score",
		metric.WithDescription("Fluency score per analysis."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ASRDuration, err = m.Float64Histogram("fluency.asr.duration",
		metric.WithDescription("Latency of speech recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("fluency.sessions.active",
		metric.WithDescription("Number of live coaching calls."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("fluency.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// ObserveAnalysis records the outcome of one analysis.
func (m *Metrics) ObserveAnalysis(ctx context.Context, res analysis.Result, failed bool) {
	status := "ok"
	if failed {
		status = "failed"
	}
	m.Analyses.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if failed {
		return
	}

	for _, d := range res.Disfluencies {
		m.Disfluencies.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(d.Type))))
	}
	m.FluencyScore.Record(ctx, float64(res.Statistics.FluencyScore))
}

// RecordASR records how long a recognition call took.
func (m *Metrics) RecordASR(ctx context.Context, provider string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ASRDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
}

// RecordHTTPRequest records one served API request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	m.HTTPRequestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}

func (m *Metrics) SessionStarted(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

func (m *Metrics) SessionEnded(ctx context.Context) {
	m.ActiveSessions.Add(ctx, -1)
}

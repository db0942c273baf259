package attendance

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rollcall/rollcall/internal/presence"
	"github.com/rollcall/rollcall/internal/telemetry"
)

const meterName = "github.com/rollcall/rollcall/internal/attendance"

// Metrics holds the scan instruments. A nil *Metrics records nothing.
type Metrics struct {
	outcomes metric.Int64Counter
	distance metric.Float64Histogram
	accuracy metric.Float64Histogram
}

// NewMetrics creates the scan instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := telemetry.Meter(meterName)

	outcomes, err := meter.Int64Counter(
		"rollcall.scan.outcomes",
		metric.WithDescription("Scan attempts by outcome and reason"),
		metric.WithUnit("{scan}"),
	)
	if err != nil {
		return nil, err
	}

	distance, err := meter.Float64Histogram(
		"rollcall.scan.distance",
		metric.WithDescription("Distance between a scan and the session geofence center"),
		metric.WithUnit("m"),
	)
	if err != nil {
		return nil, err
	}

	accuracy, err := meter.Float64Histogram(
		"rollcall.scan.accuracy",
		metric.WithDescription("Reported GPS accuracy radius of scans"),
		metric.WithUnit("m"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{outcomes: outcomes, distance: distance, accuracy: accuracy}, nil
}

// Record counts one decided scan.
func (m *Metrics) Record(ctx context.Context, mode presence.Mode, r presence.Result) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("outcome", string(r.Outcome)),
		attribute.String("reason", string(r.Reason)),
		attribute.String("mode", string(mode)),
	)
	m.outcomes.Add(ctx, 1, attrs)

	if r.DistanceMeters != nil {
		m.distance.Record(ctx, *r.DistanceMeters, attrs)
	}
	if r.AccuracyMeters != nil {
		m.accuracy.Record(ctx, *r.AccuracyMeters, attrs)
	}
}

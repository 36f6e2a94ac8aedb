// internal/booking/metrics.go
package booking

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"gymbooking/internal/domain"
)

type metrics struct {
	confirmed  metric.Int64Counter
	cancelled  metric.Int64Counter
	promotions metric.Int64Counter
	skipped    metric.Int64Counter
	failures   metric.Int64Counter
}

// newMetrics never fails: instruments that cannot be created fall back to no-ops.
func newMetrics() *metrics {
	meter := otel.Meter("gymbooking/booking")
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			c, _ = noop.NewMeterProvider().Meter("noop").Int64Counter(name)
		}
		return c
	}
	return &metrics{
		confirmed:  counter("booking.confirmed", "Bookings confirmed directly or from the waitlist"),
		cancelled:  counter("booking.cancelled", "Bookings cancelled by members"),
		promotions: counter("waitlist.promotions", "Waitlist entries promoted to bookings"),
		skipped:    counter("waitlist.skipped", "Waitlist entries dropped without promotion"),
		failures:   counter("booking.failures", "Use case invocations that ended in an error"),
	}
}

func (m *metrics) fail(ctx context.Context, op string, err error) {
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("code", string(domain.CodeOf(err))),
	))
}

package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/tracelog/internal/secrets"
)

const instrumentationName = "github.com/fyrsmithlabs/tracelog/internal/http"

// unmatchedRoute labels requests that hit no registered route, keeping
// arbitrary URLs out of metric attributes.
const unmatchedRoute = "unmatched"

// adminMetrics instruments the admin API.
type adminMetrics struct {
	requests   metric.Int64Counter
	duration   metric.Float64Histogram
	inflight   metric.Int64UpDownCounter
	redactions metric.Int64Counter
}

// newAdminMetrics registers the admin API instruments on mp, or on the
// global provider when mp is nil.
func newAdminMetrics(mp metric.MeterProvider) (*adminMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	m := &adminMetrics{}
	var errs []error
	var err error

	m.requests, err = meter.Int64Counter("tracelog.http.requests_total",
		metric.WithDescription("Admin API requests by method, route and status"),
		metric.WithUnit("{request}"))
	errs = append(errs, err)

	m.duration, err = meter.Float64Histogram("tracelog.http.request_duration_seconds",
		metric.WithDescription("Admin API request latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1))
	errs = append(errs, err)

	m.inflight, err = meter.Int64UpDownCounter("tracelog.http.inflight_requests",
		metric.WithDescription("Admin API requests being served"),
		metric.WithUnit("{request}"))
	errs = append(errs, err)

	m.redactions, err = meter.Int64Counter("tracelog.http.scrub_redactions_total",
		metric.WithDescription("Secrets redacted by /api/v1/scrub, by rule and severity"),
		metric.WithUnit("{secret}"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("creating admin metrics: %w", err)
	}
	return m, nil
}

// middleware records every request once its final status is known.
func (m *adminMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			m.inflight.Add(ctx, 1)
			defer m.inflight.Add(ctx, -1)

			if err := next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = unmatchedRoute
			}
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", route),
				attribute.Int("status", c.Response().Status),
			)
			m.requests.Add(ctx, 1, attrs)
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			return nil
		}
	}
}

// observeScrub counts the findings of one scrub request.
func (m *adminMetrics) observeScrub(ctx context.Context, result *secrets.Result) {
	for _, f := range result.Findings {
		m.redactions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("rule", f.RuleID),
			attribute.String("severity", string(f.Severity)),
		))
	}
}

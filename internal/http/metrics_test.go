package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/tracelog/internal/secrets"
)

func newMeteredEcho(t *testing.T) (*echo.Echo, *adminMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := newAdminMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	e := echo.New()
	e.Use(m.middleware())
	return e, m, reader
}

func collectSums(t *testing.T, reader *sdkmetric.ManualReader, name string) []metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok, "%s is not an int64 sum", name)
				return sum.DataPoints
			}
		}
	}
	return nil
}

func attr(dp metricdata.DataPoint[int64], key string) attribute.Value {
	v, _ := dp.Attributes.Value(attribute.Key(key))
	return v
}

func TestAdminMetrics_Middleware(t *testing.T) {
	e, _, reader := newMeteredEcho(t)
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.POST("/api/v1/scrub", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	})

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/scrub", nil),
		httptest.NewRequest(http.MethodGet, "/orders/42", nil),
	} {
		e.ServeHTTP(httptest.NewRecorder(), r)
	}

	byRoute := map[string]int64{}
	for _, dp := range collectSums(t, reader, "tracelog.http.requests_total") {
		byRoute[attr(dp, "route").AsString()] = attr(dp, "status").AsInt64()
	}
	assert.Equal(t, map[string]int64{
		"/health":       http.StatusOK,
		"/api/v1/scrub": http.StatusBadRequest,
		unmatchedRoute:  http.StatusNotFound,
	}, byRoute)

	inflight := collectSums(t, reader, "tracelog.http.inflight_requests")
	require.Len(t, inflight, 1)
	assert.Zero(t, inflight[0].Value)
}

func TestAdminMetrics_ObserveScrub(t *testing.T) {
	_, m, reader := newMeteredEcho(t)

	m.observeScrub(context.Background(), &secrets.Result{Findings: []secrets.Finding{
		{RuleID: "aws-access-key", Severity: secrets.SeverityHigh},
		{RuleID: "aws-access-key", Severity: secrets.SeverityHigh},
		{RuleID: "jwt", Severity: secrets.SeverityMedium},
	}})
	m.observeScrub(context.Background(), &secrets.Result{})

	counts := map[string]int64{}
	for _, dp := range collectSums(t, reader, "tracelog.http.scrub_redactions_total") {
		counts[attr(dp, "rule").AsString()+"/"+attr(dp, "severity").AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"aws-access-key/high": 2, "jwt/medium": 1}, counts)
}

package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/tracelog/pkg/ambient"
	"github.com/fyrsmithlabs/tracelog/pkg/record"
)

// HeaderCorrelationID carries the correlation id of a request in both
// directions.
const HeaderCorrelationID = "X-Correlation-ID"

// RecordRequests returns middleware that runs every request as an
// instrumented call of type "HTTP" named after its method and route. The
// correlation id is taken from the X-Correlation-ID header when valid, then
// from the request id, and is echoed in the response.
func RecordRequests(a *record.Assembler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := requestCorrelationID(c)
			c.Response().Header().Set(HeaderCorrelationID, id)

			ctx := ambient.WithCorrelationID(req.Context(), id)
			ctx = ambient.WithValues(ctx, map[string]any{
				"remote_ip":  c.RealIP(),
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			})

			call := record.Call{
				Type:   "HTTP",
				Method: routeName(c),
				Params: []record.Param{{Name: "uri", Value: req.URL.RequestURI()}},
			}
			_, err := record.Invoke(ctx, a, call, func(ctx context.Context) (int, error) {
				c.SetRequest(req.WithContext(ctx))
				if err := next(c); err != nil {
					return statusOf(err), err
				}
				return c.Response().Status, nil
			})
			return err
		}
	}
}

func requestCorrelationID(c echo.Context) string {
	if id := c.Request().Header.Get(HeaderCorrelationID); ambient.ValidID(id) {
		return id
	}
	if id := c.Response().Header().Get(echo.HeaderXRequestID); ambient.ValidID(id) {
		return id
	}
	return ambient.NewCorrelationID()
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

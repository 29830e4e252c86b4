package middleware

import (
	"strconv"
	"time"

	"studio-store/internal/observability"

	"github.com/labstack/echo/v4"
)

const unmatchedRoute = "unmatched"

// Metrics records request durations labelled by route template, so path
// parameters do not multiply the series. Errors are rendered here so the
// recorded status is the one the client sees.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = unmatchedRoute
			}
			observability.HTTPRequestDuration.
				WithLabelValues(c.Request().Method, path, strconv.Itoa(c.Response().Status)).
				Observe(time.Since(start).Seconds())

			return err
		}
	}
}

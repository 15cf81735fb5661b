package api

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shelfarr/shelfbrowse/internal/logger"
	"github.com/shelfarr/shelfbrowse/internal/metrics"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs each request through logrus and stores the request id
// in the request context for logger.For.
func RequestLogger(log *logrus.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			if rid != "" {
				c.SetRequest(req.WithContext(logger.ContextWithID(req.Context(), rid)))
			}

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			log.WithFields(logrus.Fields{
				"request_id": rid,
				"method":     req.Method,
				"path":       req.URL.Path,
				"query":      req.URL.RawQuery,
				"status":     c.Response().Status,
				"remote":     c.RealIP(),
				"took":       time.Since(start).String(),
			}).Info("http.request")
			return nil
		}
	}
}

// Instrument records request counts and durations per route
func Instrument(rec *metrics.Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			rec.HTTPRequests.WithLabelValues(c.Request().Method, path, strconv.Itoa(c.Response().Status)).Inc()
			rec.HTTPDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

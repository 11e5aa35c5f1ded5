package web

import (
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			goapp.Log.WithLevel(logLevel(v)).Err(v.Error).Str("method", v.Method).Str("uri", goapp.Sanitize(v.URI)).
				Int("status", v.Status).Dur("latency", v.Latency).Msg("request")
			return nil
		},
	})
}

func logLevel(v middleware.RequestLoggerValues) zerolog.Level {
	if v.Error != nil || v.Status >= 500 {
		return zerolog.ErrorLevel
	}
	if v.Status >= 400 {
		return zerolog.WarnLevel
	}
	return zerolog.InfoLevel
}

package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500 carrying the request id.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				reqID, _ := c.Get(requestIDKey).(string)
				logger.Error().
					Str("request_id", reqID).
					Str("route", c.Path()).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				err = echo.NewHTTPError(http.StatusInternalServerError,
					errorBody("internal", fmt.Sprintf("internal error (request %s)", reqID)))
			}()
			return next(c)
		}
	}
}

// errorBody matches the shape of apperr.Error for failures raised outside the
// domain services.
func errorBody(code, message string) map[string]string {
	return map[string]string{"code": code, "message": message}
}

package apperr

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HTTPStatus maps an error to the response status code.
func HTTPStatus(err error) int {
	ae, ok := As(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	}
	switch ae.Code {
	case CodeStaleWrite:
		return http.StatusPreconditionFailed
	case CodeStaffingInsufficient:
		return http.StatusUnprocessableEntity
	}
	switch ae.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindState:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// ToHTTP converts err into an echo HTTP error whose body is the structured
// error. Errors outside the taxonomy are reported without their internals.
func ToHTTP(err error) *echo.HTTPError {
	status := HTTPStatus(err)
	if ae, ok := As(err); ok {
		return echo.NewHTTPError(status, ae).SetInternal(err)
	}
	msg := http.StatusText(status)
	return echo.NewHTTPError(status, map[string]string{"message": msg}).SetInternal(err)
}

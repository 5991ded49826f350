// Package httpx holds small echo helpers shared by the domain handlers:
// optimistic-concurrency version tokens and error rendering.
package httpx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/edops/internal/platform/apperr"
)

// SetETag exposes the entity version to clients as a weak ETag.
func SetETag(c echo.Context, version int) {
	c.Response().Header().Set("ETag", FormatETag(version))
}

// FormatETag renders W/"<version>".
func FormatETag(version int) string {
	return fmt.Sprintf(`W/"%d"`, version)
}

// ParseETag accepts W/"3", "3" or 3.
func ParseETag(etag string) (int, error) {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)

	v, err := strconv.Atoi(etag)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("version token must be a positive integer: %q", etag)
	}
	return v, nil
}

// ExpectedVersion returns the version the client last read, from the If-Match
// header or, failing that, the version field of the request body. A mutation
// of a stored entity without either is rejected.
func ExpectedVersion(c echo.Context, bodyVersion int) (int, error) {
	if h := c.Request().Header.Get("If-Match"); h != "" {
		v, err := ParseETag(h)
		if err != nil {
			return 0, apperr.New(apperr.CodeInvalidInput, "invalid If-Match header: %v", err).WithField("If-Match")
		}
		return v, nil
	}
	if bodyVersion > 0 {
		return bodyVersion, nil
	}
	return 0, apperr.New(apperr.CodeInvalidInput, "version is required (If-Match header or version field)").WithField("version")
}

// Error converts a service error into an echo error.
func Error(err error) error {
	return apperr.ToHTTP(err)
}

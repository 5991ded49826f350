package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHasRole(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required []string
		want     bool
	}{
		{"match", []string{RoleScheduler}, []string{RoleScheduler}, true},
		{"one of many", []string{RoleClinician}, []string{RoleScheduler, RoleClinician}, true},
		{"admin bypass", []string{RoleAdmin}, []string{RoleClinician}, true},
		{"no match", []string{RoleViewer}, []string{RoleScheduler}, false},
		{"no roles", nil, []string{RoleViewer}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasRole(tt.granted, tt.required...); got != tt.want {
				t.Errorf("HasRole(%v, %v) = %v, want %v", tt.granted, tt.required, got, tt.want)
			}
		})
	}
}

func TestRequireRole_Allowed(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := WithIdentity(req.Context(), "u1", []string{RoleClinician})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	h := RequireRole(RoleClinician, RoleScheduler)(handler)
	if err := h(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := WithIdentity(req.Context(), "u2", []string{RoleViewer})
	req = req.WithContext(ctx)
	c := e.NewContext(req, httptest.NewRecorder())

	h := RequireRole(RoleScheduler)(func(c echo.Context) error { return nil })
	err := h(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), "root", []string{RoleAdmin}))
	c := e.NewContext(req, httptest.NewRecorder())

	h := RequireRole(RoleClinician)(func(c echo.Context) error { return nil })
	if err := h(c); err != nil {
		t.Error("admin should bypass role checks")
	}
}

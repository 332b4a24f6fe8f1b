package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, roles)
	req = req.WithContext(ctx)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestRequireRoleAllows(t *testing.T) {
	c := contextWithRoles("nurse")
	h := RequireRole("physician", "nurse")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
}

func TestRequireRoleAdminOverride(t *testing.T) {
	c := contextWithRoles("admin")
	h := RequireRole("physician")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
}

func TestRequireRoleDenies(t *testing.T) {
	c := contextWithRoles("receptionist")
	h := RequireRole("physician")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	err := h(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestRequireRoleNoRoles(t *testing.T) {
	c := contextWithRoles()
	h := RequireRole("physician")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	err := h(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

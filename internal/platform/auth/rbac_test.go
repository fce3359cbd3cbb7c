package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newRoleContext(t *testing.T, roles []string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, roles)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequireRole_Allowed(t *testing.T) {
	c, rec := newRoleContext(t, []string{"doctor"})

	h := RequireRole("doctor", "reception")(okHandler)
	if err := h(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c, _ := newRoleContext(t, []string{"lab"})

	h := RequireRole("doctor", "reception")(okHandler)
	err := h(c)
	if err == nil {
		t.Fatal("expected error for unauthorized role")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestRequireRole_AdminAlwaysPasses(t *testing.T) {
	c, rec := newRoleContext(t, []string{"admin"})

	h := RequireRole("billing")(okHandler)
	if err := h(c); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequireRole("doctor")(okHandler)
	if err := h(c); err == nil {
		t.Error("expected error when no roles are present")
	}
}

func TestDevAuthMiddleware_SetsDefaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotID string
	var gotRoles []string
	h := DevAuthMiddleware()(func(c echo.Context) error {
		gotID = UserIDFromContext(c.Request().Context())
		gotRoles = RolesFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != DevUserID {
		t.Errorf("expected dev user id %s, got %s", DevUserID, gotID)
	}
	if len(gotRoles) != 1 || gotRoles[0] != "admin" {
		t.Errorf("expected [admin], got %v", gotRoles)
	}
}

package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hdp/pcm/internal/platform/auth"
)

func serve(t *testing.T, e *echo.Echo, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestLoggerIncludesCallerIdentity(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(RequestID(), Logger(zerolog.New(&buf)))
	e.GET("/r4/Consent", func(c echo.Context) error {
		c.Set("auth_caller", &auth.Caller{ClientID: "sp-client", OrganizationID: "org-sp"})
		return c.NoContent(http.StatusOK)
	})

	serve(t, e, "/r4/Consent")

	out := buf.String()
	for _, want := range []string{
		`"client_id":"sp-client"`,
		`"organization_id":"org-sp"`,
		`"path":"/r4/Consent"`,
		`"status":200`,
		`"request_id"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log event missing %s: %s", want, out)
		}
	}
}

func TestLoggerOmitsCallerWhenUnauthenticated(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(Logger(zerolog.New(&buf)))
	e.GET("/metadata", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	serve(t, e, "/metadata")

	if out := buf.String(); strings.Contains(out, "client_id") {
		t.Errorf("unauthenticated request logged a client_id: %s", out)
	}
}

func TestRecoveryConvertsPanicTo500(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(Recovery(zerolog.New(&buf)))
	e.GET("/boom", func(c echo.Context) error {
		panic("unreachable state")
	})

	rec := serve(t, e, "/boom")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	out := buf.String()
	if !strings.Contains(out, "panic recovered") || !strings.Contains(out, "unreachable state") {
		t.Errorf("panic not logged: %s", out)
	}
	if !strings.Contains(out, `"stack"`) {
		t.Errorf("stack trace missing from log event: %s", out)
	}
}

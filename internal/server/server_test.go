package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type routeHandler struct{ registered bool }

func (h *routeHandler) Register(e *echo.Echo) {
	h.registered = true
	e.GET("/registered", func(c echo.Context) error {
		return c.String(http.StatusOK, "yes")
	})
}

func TestNewServer_RegistersHandlers(t *testing.T) {
	t.Parallel()

	h := &routeHandler{}
	srv := NewServer(":0", nil, h, nil)
	if !h.registered {
		t.Fatal("expected handler registered")
	}

	req := httptest.NewRequest(http.MethodGet, "/registered", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	if rec.Body.String() != "yes" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}

func TestNewServer_DefaultAddr(t *testing.T) {
	t.Parallel()

	srv := NewServer("", nil)
	if srv.addr != ":5000" {
		t.Fatalf("unexpected default addr: %s", srv.addr)
	}
}

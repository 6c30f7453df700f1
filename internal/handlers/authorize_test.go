package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthorizeHandler_RendersLinkingPage(t *testing.T) {
	t.Parallel()

	h := NewAuthorizeHandler(nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet,
		"/authorize?account_linking_token=tok-1&redirect_uri=https://www.messenger.com/t/link?x=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Authorize(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authorization_code=1234567890") {
		t.Fatalf("expected authorization code in page, got: %s", rec.Body.String())
	}
}

func TestAuthorizeHandler_RequiresParams(t *testing.T) {
	t.Parallel()

	h := NewAuthorizeHandler(nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/authorize", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Authorize(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestAuthorizeHandler_RejectsForeignRedirect(t *testing.T) {
	t.Parallel()

	h := NewAuthorizeHandler(nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet,
		"/authorize?account_linking_token=tok-1&redirect_uri=https://evil.example.com/steal", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Authorize(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

package handlers

import (
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

// AuthorizeHandler serves the account-linking page the platform opens when
// a user taps a log-in button. It hands an authorization code back to the
// redirect URI the platform supplies.
type AuthorizeHandler struct {
	logger *slog.Logger
}

func NewAuthorizeHandler(log *slog.Logger) *AuthorizeHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthorizeHandler{logger: log.With(slog.String("handler", "authorize"))}
}

func (h *AuthorizeHandler) Register(e *echo.Echo) {
	e.GET("/authorize", h.Authorize)
}

func (h *AuthorizeHandler) Authorize(c echo.Context) error {
	accountLinkingToken := c.QueryParam("account_linking_token")
	redirectURI := c.QueryParam("redirect_uri")
	if accountLinkingToken == "" || redirectURI == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "account_linking_token and redirect_uri are required")
	}
	if !strings.HasPrefix(redirectURI, "https://www.messenger.com/") &&
		!strings.HasPrefix(redirectURI, "https://www.facebook.com/") {
		return echo.NewHTTPError(http.StatusBadRequest, "unrecognized redirect_uri")
	}

	// There is no real identity provider behind this page; a fixed code
	// completes the linking flow.
	authCode := "1234567890"
	target := redirectURI + "&authorization_code=" + url.QueryEscape(authCode)

	h.logger.Info("account linking authorized")
	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Account Linking</title></head>
<body>
<h1>Link your account</h1>
<p><a href=%q>Confirm</a></p>
</body>
</html>`, html.EscapeString(target))
	return c.HTML(http.StatusOK, page)
}

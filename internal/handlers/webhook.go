package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pagebridge/pagebridge/internal/messenger"
)

const webhookMaxBodyBytes int64 = 1 << 20 // 1 MiB

// eventDispatcher is the slice of the messenger dispatcher the handler
// needs.
type eventDispatcher interface {
	DispatchPayload(ctx context.Context, payload messenger.WebhookPayload)
}

// WebhookHandler receives Messenger platform callbacks: the subscription
// challenge on GET and signed event deliveries on POST.
type WebhookHandler struct {
	logger      *slog.Logger
	dispatcher  eventDispatcher
	appSecret   string
	verifyToken string
}

func NewWebhookHandler(log *slog.Logger, dispatcher eventDispatcher, appSecret, verifyToken string) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:      log.With(slog.String("handler", "webhook")),
		dispatcher:  dispatcher,
		appSecret:   appSecret,
		verifyToken: verifyToken,
	}
}

// Register registers the webhook routes.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook", h.HandleVerify)
	e.POST("/webhook", h.HandleEvent)
}

// HandleVerify answers the platform's subscription handshake: echo the
// challenge when the verify token matches, 403 otherwise.
func (h *WebhookHandler) HandleVerify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	if mode != "subscribe" || token != h.verifyToken {
		h.logger.Warn("webhook verification rejected", slog.String("mode", mode))
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	h.logger.Info("webhook verified")
	return c.String(http.StatusOK, c.QueryParam("hub.challenge"))
}

// HandleEvent processes one signed event delivery. A bad or missing
// signature is rejected with 403 before the body is parsed. Once the
// payload is authentic the delivery is acknowledged with 200 immediately;
// dispatch runs in the background so slow handlers never hold up the ack.
func (h *WebhookHandler) HandleEvent(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookMaxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	if int64(len(body)) > webhookMaxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("payload too large: max %d bytes", webhookMaxBodyBytes))
	}

	if !messenger.VerifySignature(c.Request().Header.Get(messenger.SignatureHeader), body, h.appSecret) {
		h.logger.Warn("rejected webhook delivery with invalid signature")
		return echo.NewHTTPError(http.StatusForbidden, "invalid payload signature")
	}

	var payload messenger.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid webhook payload: %v", err))
	}

	go h.dispatcher.DispatchPayload(context.WithoutCancel(c.Request().Context()), payload)
	return c.NoContent(http.StatusOK)
}

// Telegram webhook handler.
//
// This file exposes the update sink used in webhook mode:
//   - POST /telegram/webhook
//
// Telegram delivers updates as JSON POSTs and retries until it sees a 2xx,
// so the handler acknowledges every structurally valid delivery; duplicate
// redeliveries are absorbed by the dispatcher's processed-update ledger. The
// route is mounted outside the operator API group: it carries its own secret
// (the X-Telegram-Bot-Api-Secret-Token header registered via setWebhook)
// instead of the bearer token, and it must never be rate limited away.
package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-magnet-bot/internal/telegram"
)

// TelegramWebhook ingests one webhook delivery: it verifies the shared
// secret, decodes the update, routes it through the dispatcher, and
// acknowledges with a bare 200 "ok".
//
// A wrong or missing secret is answered 403 without touching the body. A
// body that does not decode into an update is answered 400; Telegram drops
// the delivery rather than retrying a payload that can never parse.
func (h *Handlers) TelegramWebhook(c *gin.Context) {
	if h.webhookSecret != "" {
		got := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			fail(c, http.StatusForbidden, ErrCodeForbidden, "invalid webhook secret")
			return
		}
	}

	var upd telegram.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid update payload")
		return
	}

	h.dispatcher.HandleUpdate(c.Request.Context(), &upd)
	c.String(http.StatusOK, "ok")
}

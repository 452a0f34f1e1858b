// QR code handler.
//
// This file exposes the QR renderer for printed media:
//   - GET /qr/{id}.png
//
// The endpoint renders the link carried by a registered button (the bot deep
// link for bot-access rewards, the external URL otherwise) as a PNG, so a
// poster or slide can point straight at the same gated entry path as the
// channel post. It is deliberately unauthenticated: the encoded link is
// public by construction, it is printed on the channel post itself.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/tbourn/go-magnet-bot/internal/services"
)

// qrSize is the pixel width/height of rendered QR PNGs.
const qrSize = 256

// ButtonQR renders the button's link as a QR PNG. The ".png" suffix on the
// path parameter is optional; /qr/12 and /qr/12.png serve the same image.
func (h *Handlers) ButtonQR(c *gin.Context) {
	id, idOK := buttonIDParam(c, strings.TrimSuffix(c.Param("id"), ".png"))
	if !idOK {
		return
	}

	b, err := h.statsSvc.GetButton(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrButtonNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "button not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	png, err := qrcode.Encode(b.Link, qrcode.Medium, qrSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeQRFailed, "failed to render qr code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const doneSentinel = "[DONE]"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleGenerateWS streams fragments over a websocket for the voice
// client. Parameters come from the query string since the connection
// starts as a GET. The stream ends with a [DONE] text frame.
func (h *Handler) handleGenerateWS(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Query("sessionId"))
	message := strings.TrimSpace(c.Query("message"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	emit := func(fragment string) bool {
		return conn.WriteMessage(websocket.TextMessage, []byte(fragment)) == nil
	}

	_, err = h.orchestrator.GenerateReplyStream(c.Request.Context(), sessionID, currentUserID(c), message, emit)
	if err != nil {
		h.logger.Errorw("websocket story stream failed", "session_id", sessionID, "error", err)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("error: failed to generate story"))
	}

	_ = conn.WriteMessage(websocket.TextMessage, []byte(doneSentinel))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

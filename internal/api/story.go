package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/blocktales/storyteller/internal/session"
	"github.com/blocktales/storyteller/internal/story"
)

type generateRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

func (h *Handler) handleFetchSession(c *gin.Context) {
	sessionID := c.Param("id")

	snapshot, err := h.orchestrator.FetchOrCreate(c.Request.Context(), sessionID, currentUserID(c))
	if err != nil {
		if errors.Is(err, session.ErrSessionIDRequired) {
			writeError(c, http.StatusBadRequest, err.Error(), err)
			return
		}
		writeError(c, http.StatusInternalServerError, "failed to load session", err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (h *Handler) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	reply, err := h.orchestrator.GenerateReply(c.Request.Context(), req.SessionID, currentUserID(c), req.Message)
	if err != nil {
		h.writeGenerateError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": reply})
}

// handleGenerateStream streams fragments as server-sent events, ending
// with a [DONE] sentinel.
func (h *Handler) handleGenerateStream(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	// Reject bad input before the event-stream headers are committed,
	// so validation failures still come back as a plain 400.
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(c, http.StatusBadRequest, session.ErrSessionIDRequired.Error(), session.ErrSessionIDRequired)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(c, http.StatusBadRequest, session.ErrEmptyUserMessage.Error(), session.ErrEmptyUserMessage)
		return
	}

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		writeError(c, http.StatusInternalServerError, "streaming not supported", errors.New("response writer cannot flush"))
		return
	}

	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	writer.Header().Set("Connection", "keep-alive")
	writer.WriteHeader(http.StatusOK)

	emit := func(fragment string) bool {
		if err := writeSSEData(writer, fragment); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	_, err := h.orchestrator.GenerateReplyStream(c.Request.Context(), req.SessionID, currentUserID(c), req.Message, emit)
	if err != nil {
		// Headers are gone by now; report the failure in-band.
		h.logger.Errorw("story stream failed", "session_id", req.SessionID, "error", err)
		fmt.Fprintf(writer, "event: error\ndata: failed to generate story\n\n")
	}

	fmt.Fprintf(writer, "data: [DONE]\n\n")
	flusher.Flush()
}

// writeSSEData frames text as one event. Each line of the payload gets its
// own data: field so embedded newlines survive the event-stream protocol.
func writeSSEData(w io.Writer, text string) error {
	for _, line := range strings.Split(text, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func (h *Handler) writeGenerateError(c *gin.Context, err error) {
	var genErr *story.GenerationError

	switch {
	case errors.Is(err, session.ErrSessionIDRequired),
		errors.Is(err, session.ErrEmptyUserMessage),
		errors.Is(err, story.ErrEmptyUserMessage):
		writeError(c, http.StatusBadRequest, err.Error(), err)
	case errors.As(err, &genErr):
		writeError(c, http.StatusBadGateway, "failed to generate story", err)
	default:
		writeError(c, http.StatusInternalServerError, "failed to generate story", err)
	}
}

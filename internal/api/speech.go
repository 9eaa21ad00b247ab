package api

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/blocktales/storyteller/internal/speech"
)

type synthesizeRequest struct {
	Text       string  `json:"text"`
	VoiceType  string  `json:"voiceType"`
	Encoding   string  `json:"encoding"`
	SpeedRatio float64 `json:"speedRatio"`
}

func (h *Handler) handleSynthesize(c *gin.Context) {
	var req synthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		writeError(c, http.StatusBadRequest, "text is required", speech.ErrTextRequired)
		return
	}

	result, err := h.speech.Synthesize(c.Request.Context(), speech.SynthesizeRequest{
		Text:       req.Text,
		VoiceType:  req.VoiceType,
		Encoding:   req.Encoding,
		SpeedRatio: req.SpeedRatio,
	})
	if err != nil {
		writeError(c, http.StatusBadGateway, "failed to synthesize speech", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reqid":    result.ReqID,
		"audio":    base64.StdEncoding.EncodeToString(result.Audio),
		"duration": result.Duration,
	})
}

func (h *Handler) handleListVoices(c *gin.Context) {
	voices, err := h.speech.ListVoices(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusBadGateway, "failed to list voices", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"voices": voices})
}

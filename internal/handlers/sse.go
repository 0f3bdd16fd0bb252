package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/internal/utils"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
)

// SSEHandler streams live review status and import progress to dashboards.
type SSEHandler struct {
	hub *services.SSEHub
}

func NewSSEHandler(hub *services.SSEHub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// EventSource cannot set headers, so the token may also come as ?token=.
func bearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func setSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}

func writeSSE(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// StreamEvents handles GET /api/events. ?type=review or ?type=import narrows
// the stream to one event kind.
func (h *SSEHandler) StreamEvents(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	if _, err := utils.ParseToken(token); err != nil {
		response.Unauthorized(c, "Invalid token")
		return
	}

	only := c.Query("type")
	setSSEHeaders(c)

	clientID := uuid.New().String()
	events := h.hub.Subscribe(clientID)
	defer h.hub.Unsubscribe(clientID)

	log := logger.Component("sse").With().Str("client_id", clientID).Logger()
	log.Info().Int("total", h.hub.ClientCount()).Msg("SSE client connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			if only != "" && event.Type != only {
				return true
			}
			if err := writeSSE(w, event); err != nil {
				log.Error().Err(err).Msg("SSE write error")
				return false
			}
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			log.Info().Msg("SSE client disconnected")
			return false
		}
	})
}

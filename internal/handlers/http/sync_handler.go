package http

import (
	"livebridge/internal/core/domain"
	"livebridge/internal/infrastructure/signal"
	"livebridge/pkg/errors"

	"github.com/gin-gonic/gin"
)

// SyncHandler attaches dashboard views to a sync channel over a websocket.
type SyncHandler struct {
	server *signal.WebSocketServer
}

func NewSyncHandler(server *signal.WebSocketServer) *SyncHandler {
	return &SyncHandler{server: server}
}

func (h *SyncHandler) SetupRoutes(group gin.IRoutes) {
	group.GET("/ws/:channel", h.Attach)
}

func (h *SyncHandler) Attach(c *gin.Context) {
	channel, err := domain.ParseSyncChannel(c.Param("channel"))
	if err != nil {
		c.Error(errors.NewNotFoundError("channel " + c.Param("channel")))
		return
	}
	h.server.HandleWebSocket(c.Writer, c.Request, channel)
}

package http

import (
	"context"
	stderrors "errors"
	"net/http"

	"livebridge/internal/core/domain"
	"livebridge/internal/core/ports"
	"livebridge/pkg/errors"

	"github.com/gin-gonic/gin"
)

type EventHandler struct {
	eventManager ports.EventManagerService
}

func NewEventHandler(eventManager ports.EventManagerService) *EventHandler {
	return &EventHandler{eventManager: eventManager}
}

func (h *EventHandler) SetupRoutes(api *gin.RouterGroup) {
	event := api.Group("/event")
	{
		event.GET("", h.GetEvent)
		event.POST("/session", h.StartSession)
		event.DELETE("/session", h.EndSession)
		event.PUT("/settings", h.UpdateSettings)
		event.POST("/start", h.Start)
		event.POST("/end", h.End)
		event.POST("/control/connect", h.ConnectControlPlane)
	}
}

func (h *EventHandler) GetEvent(c *gin.Context) {
	c.JSON(http.StatusOK, h.eventManager.View())
}

func (h *EventHandler) StartSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewFieldError("private_key", "private key is required"))
		return
	}

	view, err := h.eventManager.StartSession(c.Request.Context(), req.PrivateKey)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *EventHandler) EndSession(c *gin.Context) {
	if err := h.eventManager.EndSession(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EventHandler) UpdateSettings(c *gin.Context) {
	var req domain.EventConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	cfg, err := h.eventManager.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

func (h *EventHandler) Start(c *gin.Context) {
	h.respondPublish(c, h.eventManager.Start)
}

func (h *EventHandler) End(c *gin.Context) {
	h.respondPublish(c, h.eventManager.End)
}

func (h *EventHandler) ConnectControlPlane(c *gin.Context) {
	if err := h.eventManager.ConnectControlPlane(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.eventManager.View())
}

// respondPublish reports a rejected publish as 502 with the per-relay results
// attached.
func (h *EventHandler) respondPublish(c *gin.Context, publish func(ctx context.Context) (domain.PublishResult, error)) {
	res, err := publish(c.Request.Context())
	if err != nil {
		if stderrors.Is(err, domain.ErrNoRelayAccepted) {
			c.Error(errors.NewBadGatewayError("no relay accepted the event", err).WithContext("relays", res.Relays))
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

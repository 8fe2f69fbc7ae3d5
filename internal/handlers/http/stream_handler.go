package http

import (
	"net/http"

	"livebridge/internal/core/domain"
	"livebridge/internal/core/ports"
	"livebridge/pkg/errors"

	"github.com/gin-gonic/gin"
)

type StreamHandler struct {
	streamManager ports.StreamManagerService
}

func NewStreamHandler(streamManager ports.StreamManagerService) *StreamHandler {
	return &StreamHandler{streamManager: streamManager}
}

func (h *StreamHandler) SetupRoutes(api *gin.RouterGroup) {
	stream := api.Group("/stream")
	{
		stream.GET("", h.GetStream)
		stream.POST("/session", h.StartSession)
		stream.DELETE("/session", h.EndSession)
		stream.PUT("/settings", h.UpdateSettings)
		stream.GET("/relays", h.ListRelays)
		stream.POST("/relays", h.AddRelay)
		stream.DELETE("/relays", h.RemoveRelay)
		stream.PUT("/participants", h.SetParticipants)
		stream.POST("/control/connect", h.ConnectControlPlane)
	}
}

type SessionRequest struct {
	PrivateKey string `json:"private_key" binding:"required,max=128"`
}

type AddRelayRequest struct {
	NewRelay string `json:"new_relay" binding:"max=2048"`
}

type RemoveRelayRequest struct {
	URL string `json:"url" binding:"required,max=2048"`
}

type ParticipantsRequest struct {
	P []string `json:"p" binding:"max=100"`
}

func (h *StreamHandler) GetStream(c *gin.Context) {
	c.JSON(http.StatusOK, h.streamManager.View())
}

func (h *StreamHandler) StartSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewFieldError("private_key", "private key is required"))
		return
	}

	view, err := h.streamManager.StartSession(c.Request.Context(), req.PrivateKey)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *StreamHandler) EndSession(c *gin.Context) {
	if err := h.streamManager.EndSession(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StreamHandler) UpdateSettings(c *gin.Context) {
	var req domain.EventConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	cfg, err := h.streamManager.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

func (h *StreamHandler) ListRelays(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"relays": h.streamManager.RelayStates(c.Request.Context())})
}

func (h *StreamHandler) AddRelay(c *gin.Context) {
	var req AddRelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewFieldError("newRelay", "invalid request format"))
		return
	}

	cfg, err := h.streamManager.AddRelay(c.Request.Context(), req.NewRelay)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"config": cfg})
}

func (h *StreamHandler) RemoveRelay(c *gin.Context) {
	var req RemoveRelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewFieldError("url", "relay url is required"))
		return
	}

	cfg, err := h.streamManager.RemoveRelay(c.Request.Context(), req.URL)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

func (h *StreamHandler) SetParticipants(c *gin.Context) {
	var req ParticipantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewFieldError("p", "invalid participant list"))
		return
	}

	cfg, err := h.streamManager.SetParticipants(c.Request.Context(), req.P)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

func (h *StreamHandler) ConnectControlPlane(c *gin.Context) {
	if err := h.streamManager.ConnectControlPlane(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.streamManager.View())
}

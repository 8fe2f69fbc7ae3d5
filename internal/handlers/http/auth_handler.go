package http

import (
	"net/http"

	"livebridge/internal/core/services"
	"livebridge/internal/infrastructure/middleware"
	"livebridge/pkg/errors"

	"github.com/gin-gonic/gin"
)

// AuthHandler lets an authenticated view trade its token for a fresh one.
// Initial tokens are minted offline with the token command.
type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) SetupRoutes(api *gin.RouterGroup) {
	auth := api.Group("/auth")
	{
		auth.POST("/refresh", h.RefreshToken)
		auth.GET("/whoami", h.WhoAmI)
	}
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	client := c.GetString(middleware.ClientKey)
	if client == "" {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	token, err := h.authService.GenerateToken(client)
	if err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to issue token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
	})
}

func (h *AuthHandler) WhoAmI(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"client": c.GetString(middleware.ClientKey)})
}

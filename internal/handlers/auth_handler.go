package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bazaarverse/numrent/internal/models"
	"github.com/bazaarverse/numrent/internal/service"
	"github.com/bazaarverse/numrent/pkg/logger"
	"github.com/bazaarverse/numrent/pkg/middleware"
)

type AuthHandler struct {
	auth *service.AuthService
	log  logger.Logger
}

func NewAuthHandler(auth *service.AuthService, log logger.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, log: log}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), &req, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	token := middleware.ExtractToken(c)
	if token != "" {
		if err := h.auth.Logout(c.Request.Context(), token); err != nil {
			h.log.Warn("failed to revoke session", logger.Field{Key: "error", Value: err.Error()})
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Check reports the authenticated principal back to the client. The auth
// middleware has already validated the token by the time this runs.
func (h *AuthHandler) Check(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"username":      principal.Username,
		"role":          principal.Role,
	})
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bazaarverse/numrent/internal/models"
	"github.com/bazaarverse/numrent/internal/service"
	"github.com/bazaarverse/numrent/pkg/logger"
	"github.com/bazaarverse/numrent/pkg/middleware"
)

type UserHandler struct {
	accounts *service.AccountService
	log      logger.Logger
}

func NewUserHandler(accounts *service.AccountService, log logger.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, log: log}
}

func (h *UserHandler) DashboardData(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	dashboard, err := h.accounts.Dashboard(c.Request.Context(), principal)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dashboard)
}

func (h *UserHandler) History(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	status := models.NumberStatus(c.Query("status"))

	history, err := h.accounts.History(c.Request.Context(), principal, status, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

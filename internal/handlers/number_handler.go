package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bazaarverse/numrent/internal/models"
	"github.com/bazaarverse/numrent/internal/service"
	"github.com/bazaarverse/numrent/pkg/logger"
	"github.com/bazaarverse/numrent/pkg/middleware"
)

type NumberHandler struct {
	numbers *service.NumberService
	log     logger.Logger
}

func NewNumberHandler(numbers *service.NumberService, log logger.Logger) *NumberHandler {
	return &NumberHandler{numbers: numbers, log: log}
}

func (h *NumberHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *NumberHandler) Servers(c *gin.Context) {
	raw, err := h.numbers.Servers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}

func (h *NumberHandler) Countries(c *gin.Context) {
	raw, err := h.numbers.Countries(c.Request.Context(), c.Query("server_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}

func (h *NumberHandler) Services(c *gin.Context) {
	raw, err := h.numbers.Services(c.Request.Context(), c.Query("server_id"), c.Query("country"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}

func (h *NumberHandler) Prices(c *gin.Context) {
	table, err := h.numbers.Prices(c.Request.Context(), c.Query("server_id"), c.Query("country"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, table)
}

func (h *NumberHandler) BuyNumber(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req models.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result, err := h.numbers.Purchase(c.Request.Context(), principal, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *NumberHandler) SMSStatus(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	activationID := c.Param("activationId")
	result, err := h.numbers.Poll(c.Request.Context(), principal, activationID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *NumberHandler) CancelNumber(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	activationID := c.Param("activationId")
	result, err := h.numbers.Cancel(c.Request.Context(), principal, activationID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *NumberHandler) ActiveNumbers(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	records, err := h.numbers.ActiveNumbers(c.Request.Context(), principal)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"numbers": records})
}

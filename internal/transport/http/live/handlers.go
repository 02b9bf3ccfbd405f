package livehttp

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"contra/internal/logger"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

type handler struct {
	controller Controller
	trades     TradeReader
}

func (h *handler) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Status())
}

type tradingToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *handler) handleTradingToggle(c *gin.Context) {
	var req tradingToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": `body must be {"enabled": true|false}`})
		return
	}
	h.controller.SetTradingEnabled(*req.Enabled)
	logger.Infof("trading toggled to %v via API from %s", *req.Enabled, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"enabled": h.controller.TradingEnabled()})
}

func (h *handler) handleCloseAll(c *gin.Context) {
	logger.Warnf("manual close-all requested from %s", c.ClientIP())
	closed := h.controller.CloseAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

func (h *handler) handleTrades(c *gin.Context) {
	if h.trades == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade history is not configured"})
		return
	}
	trades, err := h.trades.RecentTrades(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (h *handler) handleEquity(c *gin.Context) {
	if h.trades == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "equity history is not configured"})
		return
	}
	points, err := h.trades.EquityHistory(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points, "count": len(points)})
}

func queryLimit(c *gin.Context) int {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit
}

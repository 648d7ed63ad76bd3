package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tradeops/internal/engine"
)

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Status(c.Request.Context()))
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Metrics(c.Request.Context()))
}

func (s *Server) getTrades(c *gin.Context) {
	trades := s.Engine.Trades(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) getTradeHistory(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	rows, err := s.Engine.TradeHistory(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": rows, "count": len(rows)})
}

func (s *Server) getIssues(c *gin.Context) {
	issues := s.Engine.Issues(c.Request.Context())
	unresolved := 0
	for _, is := range issues {
		if !is.Resolved {
			unresolved++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"issues":     issues,
		"count":      len(issues),
		"unresolved": unresolved,
	})
}

func (s *Server) startTrading(c *gin.Context) {
	if err := s.Engine.StartLiveTrading(c.Request.Context()); err != nil {
		if errors.Is(err, engine.ErrAlreadyTrading) {
			c.JSON(http.StatusConflict, gin.H{
				"code":  "ALREADY_TRADING",
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "starting"})
}

func (s *Server) stopTrading(c *gin.Context) {
	if err := s.Engine.StopLiveTrading(c.Request.Context()); err != nil {
		if errors.Is(err, engine.ErrNotTrading) {
			c.JSON(http.StatusConflict, gin.H{
				"code":  "NOT_TRADING",
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) closeAllTrades(c *gin.Context) {
	closed, err := s.Engine.CloseAllTrades(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": closed, "count": len(closed)})
}

func (s *Server) forceHealthCheck(c *gin.Context) {
	report, err := s.Engine.ForceHealthCheck(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) clearResolvedIssues(c *gin.Context) {
	n, err := s.Engine.ClearResolvedIssues(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) RunAutoBilling(c *gin.Context) {
	var body struct {
		ForceRegenerate bool `json:"force_regenerate"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
			return
		}
	}

	report, err := s.runner.RunOnce(c.Request.Context(), body.ForceRegenerate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) ListUpcomingBilling(c *gin.Context) {
	daysAhead := 30
	parsed, err := parseOptionalInt(c.Query("days_ahead"))
	if err != nil || (parsed != nil && *parsed <= 0) {
		AbortWithError(c, newValidationError("days_ahead", "invalid_days", "invalid value"))
		return
	}
	if parsed != nil {
		daysAhead = *parsed
	}

	upcoming, err := s.analyticsSvc.GetUpcoming(c.Request.Context(), daysAhead)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": upcoming})
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	scheduledomain "github.com/jvcardoso/proteamcare-billing/internal/schedule/domain"
)

func (s *Server) ListSchedules(c *gin.Context) {
	req := scheduledomain.ListScheduleRequest{}

	contractID, err := parseOptionalSnowflakeID(c.Query("contract_id"))
	if err != nil {
		AbortWithError(c, newValidationError("contract_id", "invalid_id", "invalid id"))
		return
	}
	req.ContractID = contractID

	activeOnly, err := parseOptionalBool(c.Query("active_only"))
	if err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_bool", "invalid value"))
		return
	}
	if activeOnly != nil {
		req.ActiveOnly = *activeOnly
	}

	resp, err := s.scheduleSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Schedules})
}

func (s *Server) UpsertSchedule(c *gin.Context) {
	var req scheduledomain.UpsertScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	if req.ContractID == 0 {
		AbortWithError(c, newValidationError("contract_id", "required", "contract_id is required"))
		return
	}

	item, err := s.scheduleSvc.Upsert(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) UpsertScheduleByContract(c *gin.Context) {
	contractID, err := parsePathSnowflakeID(c, "contract_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req scheduledomain.UpsertScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	req.ContractID = contractID

	item, err := s.scheduleSvc.Upsert(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeactivateSchedule(c *gin.Context) {
	contractID, err := parsePathSnowflakeID(c, "contract_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.scheduleSvc.Deactivate(c.Request.Context(), contractID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deactivated": true}})
}

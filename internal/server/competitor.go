package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	competitordomain "github.com/bozorlab/marketpulse/internal/competitor/domain"
)

func (s *Server) TrackCompetitor(c *gin.Context) {
	var req competitordomain.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tracking, err := s.competitorsvc.Track(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tracking)
}

func (s *Server) UntrackCompetitor(c *gin.Context) {
	var req competitordomain.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.competitorsvc.Untrack(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) CreateAlertRule(c *gin.Context) {
	var req competitordomain.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rule, err := s.competitorsvc.CreateRule(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

func (s *Server) ListAlerts(c *gin.Context) {
	alerts, err := s.competitorsvc.Alerts(c.Request.Context(), queryLimit(c, 50, 200))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// TriggerCompetitorSweep queues an immediate monitoring pass ahead of the
// recurring schedule.
func (s *Server) TriggerCompetitorSweep(c *gin.Context) {
	jobID, err := s.dispatcher.EnqueueCompetitorSweep(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

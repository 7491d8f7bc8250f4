package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	discoverydomain "github.com/bozorlab/marketpulse/internal/discovery/domain"
)

// CreateRun accepts a category discovery request and queues its execution.
// The run stays PENDING until a worker picks it up; clients poll GetRun.
func (s *Server) CreateRun(c *gin.Context) {
	var req discoverydomain.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	run, err := s.discoverysvc.CreateRun(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if _, err := s.dispatcher.EnqueueDiscoveryRun(ctx, run.ID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, run)
}

func (s *Server) GetRun(c *gin.Context) {
	runID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := s.discoverysvc.GetRun(c.Request.Context(), snowflake.ID(runID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) ListRuns(c *gin.Context) {
	runs, err := s.discoverysvc.ListRuns(c.Request.Context(), queryLimit(c, 20, 100))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

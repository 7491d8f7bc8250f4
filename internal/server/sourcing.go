package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	sourcingdomain "github.com/bozorlab/marketpulse/internal/sourcing/domain"
)

// CreateSourcingJob accepts a supplier search and queues its execution. When
// product_id is set the worker computes margin and ROI against that item's
// current sell price.
func (s *Server) CreateSourcingJob(c *gin.Context) {
	var req sourcingdomain.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	job, err := s.sourcingsvc.CreateJob(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if _, err := s.dispatcher.EnqueueSourcingJob(ctx, job.ID, job.Query); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, job)
}

func (s *Server) GetSourcingJob(c *gin.Context) {
	jobID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := s.sourcingsvc.GetJob(c.Request.Context(), snowflake.ID(jobID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) ListSourcingJobs(c *gin.Context) {
	jobs, err := s.sourcingsvc.ListJobs(c.Request.Context(), queryLimit(c, 20, 100))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

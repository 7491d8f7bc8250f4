package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	itemdomain "github.com/bozorlab/marketpulse/internal/item/domain"
)

type trackItemRequest struct {
	ProductID int64 `json:"product_id"`
}

func (s *Server) TrackItem(c *gin.Context) {
	var req trackItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.itemsvc.Track(c.Request.Context(), itemdomain.TrackRequest{ProductID: req.ProductID})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

func (s *Server) UntrackItem(c *gin.Context) {
	productID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.itemsvc.Untrack(c.Request.Context(), productID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AnalyzeItem queues an immediate reanalysis of a tracked product. The scoring
// happens on the worker; callers observe the result through snapshots.
func (s *Server) AnalyzeItem(c *gin.Context) {
	productID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := s.itemsvc.Tracked(ctx, productID); err != nil {
		AbortWithError(c, err)
		return
	}

	jobID, err := s.dispatcher.EnqueueAnalyze(ctx, productID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// pathID parses a positive int64 path parameter, aborting the request on
// malformed input.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		AbortWithError(c, newValidationError(name, "invalid_id", "id must be a positive integer"))
		return 0, false
	}
	return id, true
}

// queryLimit reads a bounded ?limit= query parameter.
func queryLimit(c *gin.Context, fallback, max int) int {
	raw := c.DefaultQuery("limit", "")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

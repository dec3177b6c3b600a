package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/lookout/models"
	"github.com/use-agent/lookout/session"
)

// Search returns a handler for POST /api/v1/search.
//
// The coordinator serializes all browser work, so this handler may park in
// the FIFO queue before the search runs; TotalMs includes that wait,
// SessionMs only the time the browser was actually held.
func Search(co *session.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.SearchResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		sessionStart := time.Now()
		set, err := co.Search(c.Request.Context(), req.Query, models.Engine(req.Engine), req.Num)
		sessionMs := time.Since(sessionStart).Milliseconds()

		if err != nil {
			op := asOpError(err)
			c.JSON(mapErrorToStatus(op), models.SearchResponse{
				Error: op.ToDetail(),
				Timing: models.TimingInfo{
					TotalMs:   time.Since(totalStart).Milliseconds(),
					SessionMs: sessionMs,
				},
			})
			return
		}

		c.JSON(http.StatusOK, models.SearchResponse{
			Success:          true,
			Engine:           set.Engine,
			OrganicResults:   set.OrganicResults,
			RelatedQuestions: set.RelatedQuestions,
			KnowledgeGraph:   set.KnowledgeGraph,
			Timing: models.TimingInfo{
				TotalMs:   time.Since(totalStart).Milliseconds(),
				SessionMs: sessionMs,
			},
		})
	}
}

package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/lookout/cache"
	"github.com/use-agent/lookout/models"
	"github.com/use-agent/lookout/session"
)

// Scrape returns a handler for POST /api/v1/scrape.
//
// Flow:
//  1. Parse & validate request.
//  2. Cache lookup when the request allows staleness (max_age > 0).
//  3. Coordinator scrape: navigate → challenge check → extraction.
//  4. Cache store, fill timing, respond.
//
// A sparse target page is a success with empty content, never an error.
func Scrape(co *session.Coordinator, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		cacheKey := cache.Key(req.URL)
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				c.JSON(http.StatusOK, models.ScrapeResponse{
					Success:     true,
					Content:     cached,
					CacheStatus: "hit",
					Timing: models.TimingInfo{
						TotalMs: time.Since(totalStart).Milliseconds(),
					},
				})
				return
			}
		}

		sessionStart := time.Now()
		content, err := co.Scrape(c.Request.Context(), req.URL)
		sessionMs := time.Since(sessionStart).Milliseconds()

		if err != nil {
			op := asOpError(err)
			c.JSON(mapErrorToStatus(op), models.ScrapeResponse{
				Error: op.ToDetail(),
				Timing: models.TimingInfo{
					TotalMs:   time.Since(totalStart).Milliseconds(),
					SessionMs: sessionMs,
				},
			})
			return
		}

		resp := models.ScrapeResponse{
			Success: true,
			Content: content,
			Timing: models.TimingInfo{
				TotalMs:   time.Since(totalStart).Milliseconds(),
				SessionMs: sessionMs,
			},
		}
		if cc != nil {
			cc.Set(cacheKey, content)
			if req.MaxAge > 0 {
				resp.CacheStatus = "miss"
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}

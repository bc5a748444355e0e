package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/topdf/history"
	"github.com/use-agent/topdf/models"
)

// History returns a handler for GET /api/v1/history?limit=N, newest first.
// A nil store answers with an empty list.
func History(h *history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				abort(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		resp := models.HistoryResponse{Entries: []models.HistoryEntry{}}
		if h != nil {
			for _, e := range h.Recent(limit) {
				resp.Entries = append(resp.Entries, models.HistoryEntry{
					Name:      e.Name,
					Path:      e.Path,
					URL:       e.URL,
					PageCount: e.PageCount,
					CreatedAt: e.CreatedAt,
				})
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

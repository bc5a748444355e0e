package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/topdf/models"
)

// respondError writes a structured JSON error. Conversion errors keep their
// kind, stage and hint; anything else becomes INTERNAL_ERROR.
func respondError(c *gin.Context, err error) {
	ce, ok := models.AsConvertError(err)
	if !ok {
		abort(c, http.StatusInternalServerError, models.ErrCodeInternal, err.Error())
		return
	}
	c.AbortWithStatusJSON(mapKindToStatus(ce.Kind), models.ErrorResponse{Error: ce.ToDetail()})
}

// abort writes an API-level error that did not come out of a conversion.
func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Error: &models.ErrorDetail{Code: code, Message: message},
	})
}

// mapKindToStatus translates conversion error kinds to HTTP status codes.
func mapKindToStatus(k models.Kind) int {
	switch {
	case k == models.KindInvalidTarget:
		return http.StatusBadRequest // 400
	case k.Within(models.KindAuthentication):
		return http.StatusForbidden // 403
	case k.Within(models.KindScraping):
		return http.StatusBadGateway // 502
	case k == models.KindTimeout:
		return http.StatusGatewayTimeout // 504
	case k == models.KindCanceled:
		return http.StatusConflict // 409
	default:
		return http.StatusInternalServerError // 500
	}
}

package handler

import (
	"errors"
	"net/http"

	"github.com/use-agent/lookout/models"
)

// asOpError normalizes any error to an OpError so the response always
// carries a stable code.
func asOpError(err error) *models.OpError {
	var op *models.OpError
	if errors.As(err, &op) {
		return op
	}
	return models.NewOpError(models.ErrCodeInternal, err.Error(), err)
}

// mapErrorToStatus translates error codes to HTTP status codes.
//
// Queue saturation is 503 (the service is up but cannot admit work);
// upstream-page failures are the 5xx gateway codes.
func mapErrorToStatus(e *models.OpError) int {
	switch e.Code {
	case models.ErrCodeQueueTimeout:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeNavigationTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeChallenge, models.ErrCodeEngineUnavailable:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/homefix/core/apperr"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code      apperr.Code `json:"code"`
	Error     string      `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

var statusByCode = map[apperr.Code]int{
	apperr.CodeNotFound:              http.StatusNotFound,
	apperr.CodeInvalidTransition:     http.StatusConflict,
	apperr.CodeConcurrencyConflict:   http.StatusConflict,
	apperr.CodeAlreadyAssigned:       http.StatusConflict,
	apperr.CodeOfferExpired:          http.StatusGone,
	apperr.CodeNotEligible:           http.StatusUnprocessableEntity,
	apperr.CodeNoEligibleTechnicians: http.StatusUnprocessableEntity,
	apperr.CodeInvalidRate:           http.StatusBadRequest,
	apperr.CodeConfigMissing:         http.StatusServiceUnavailable,
	apperr.CodeForbidden:             http.StatusForbidden,
	apperr.CodeInvalidArgument:       http.StatusBadRequest,
}

// HTTPStatus maps an error code to its response status.
func HTTPStatus(code apperr.Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	msg := err.Error()
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		// infrastructure errors stay in the logs
		_ = c.Error(err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(HTTPStatus(code), ErrorResponse{
		Code:      code,
		Error:     msg,
		RequestID: GetRequestID(c),
	})
}

func badRequest(c *gin.Context, err error) {
	respondError(c, apperr.Wrap(apperr.CodeInvalidArgument, err, "invalid request: %v", err))
}

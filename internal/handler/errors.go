package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// classify maps a service error to its HTTP status and API code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrExamNotAvailable):
		return http.StatusForbidden, response.ErrExamNotAvailable
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusConflict, response.ErrNoQuestions
	case errors.Is(err, service.ErrExamNotStarted):
		return http.StatusForbidden, response.ErrExamNotStarted
	case errors.Is(err, service.ErrExamClosed):
		return http.StatusForbidden, response.ErrExamClosed
	case errors.Is(err, service.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, service.ErrSubmissionInProgress):
		return http.StatusConflict, response.ErrSubmissionInProgress
	case errors.Is(err, service.ErrInvalidOption):
		return http.StatusUnprocessableEntity, response.ErrInvalidOption
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

func failService(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	switch {
	case code == response.ErrInvalidOption:
		response.FailWithFields(c, status, code, map[string]string{"answers": err.Error()})
	case status == http.StatusInternalServerError:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		response.Fail(c, status, code)
	default:
		response.Fail(c, status, code)
	}
}

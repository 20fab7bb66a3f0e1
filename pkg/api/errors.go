package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/repository"
	"github.com/civisight/portal/pkg/services"
)

// statusFor maps service and repository errors to HTTP status codes.
func statusFor(err error) int {
	var verr services.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, repository.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicate), errors.Is(err, services.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden), errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": msg}. Internal errors are logged and hidden.
func (s *Server) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	var verr services.ValidationError
	switch {
	case errors.As(err, &verr):
		msg = verr.Error()
	case status == http.StatusInternalServerError:
		s.logger.Error("Request failed", map[string]interface{}{
			"path":       c.Request.URL.Path,
			"request_id": c.GetString("request_id"),
			"error":      err.Error(),
		})
		msg = "internal server error"
	case status == http.StatusNotFound:
		msg = "not found"
	case status == http.StatusUnauthorized:
		msg = errors.Cause(err).Error()
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

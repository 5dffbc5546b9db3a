package api

import (
	"log"
	"net/http"

	"bustracker/internal/model"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case model.IsValidation(err):
		return http.StatusBadRequest
	case model.IsNotFound(err):
		return http.StatusNotFound
	case model.IsPrecondition(err), model.IsInvalidState(err), model.IsDuplicate(err):
		return http.StatusConflict
	case model.IsConnectivity(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondDomainError writes err with its mapped status. Internal details of
// unexpected failures are logged, not returned.
func respondDomainError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		msg = "internal server error"
	case http.StatusServiceUnavailable:
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		msg = "storage temporarily unavailable"
	}
	respondError(c, status, msg)
}

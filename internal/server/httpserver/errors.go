package httpserver

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/gin-gonic/gin"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrInvalidSignature),
		errors.Is(err, common.ErrChallengeExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrNotEligible):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrDuplicateAction):
		return http.StatusConflict
	case errors.Is(err, common.ErrTransactionSubmission),
		errors.Is(err, common.ErrLedgerQuery):
		return http.StatusBadGateway
	case errors.Is(err, common.ErrProposalPending):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()

	switch {
	case code == http.StatusInternalServerError && !errors.Is(err, common.ErrMirrorWrite):
		h.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		msg = common.ErrorInternal.Error()
	case code >= http.StatusInternalServerError:
		h.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	default:
		h.logger.Debug(c.Request.Context(), "request rejected", "path", c.FullPath(), "status", code, "error", err)
	}

	if code == http.StatusServiceUnavailable {
		c.Header("Retry-After", "30")
	}
	c.AbortWithStatusJSON(code, gin.H{"err": msg})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"err": err.Error()})
}

package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MrEthical07/passgate"
)

// statusFor maps an engine error to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch passgate.KindOf(err) {
	case passgate.KindClientInput:
		return http.StatusBadRequest, "invalid_request"
	case passgate.KindAuthentication:
		if errors.Is(err, passgate.ErrAccountInactive) {
			return http.StatusForbidden, "account_inactive"
		}
		return http.StatusUnauthorized, "invalid_credentials"
	case passgate.KindExhausted:
		if errors.Is(err, passgate.ErrAccountLocked) {
			return http.StatusLocked, "account_locked"
		}
		return http.StatusLocked, "code_exhausted"
	case passgate.KindNotFound:
		if errors.Is(err, passgate.ErrNoValidCredential) || errors.Is(err, passgate.ErrRoleMissing) {
			return http.StatusInternalServerError, "server_error"
		}
		return http.StatusNotFound, "not_found"
	case passgate.KindToken:
		return http.StatusUnauthorized, "invalid_token"
	case passgate.KindScope:
		return http.StatusForbidden, "scope_mismatch"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	body := gin.H{"error": code, "error_description": err.Error()}

	var lockErr *passgate.LockoutError
	if errors.As(err, &lockErr) {
		retry := lockErr.RetryAfter(h.now())
		c.Header("Retry-After", strconv.Itoa(int((retry+time.Second-1)/time.Second)))
		body["locked_until"] = lockErr.Until.UTC()
	}
	var policyErr *passgate.PolicyError
	if errors.As(err, &policyErr) {
		body["violations"] = policyErr.Violations
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("httpapi: request failed", zap.String("path", c.FullPath()), zap.Error(err))
		body["error_description"] = "Internal error."
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, description string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":             "invalid_request",
		"error_description": description,
	})
}

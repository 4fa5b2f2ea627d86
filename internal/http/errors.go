package http

import (
	"errors"
	"net/http"
	"os"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Qaquka/aatm-qaquka/internal/browse"
	"github.com/Qaquka/aatm-qaquka/internal/jobs"
	"github.com/Qaquka/aatm-qaquka/internal/mediainfo"
	"github.com/Qaquka/aatm-qaquka/internal/packager"
	"github.com/Qaquka/aatm-qaquka/internal/push"
	"github.com/Qaquka/aatm-qaquka/internal/sandbox"
	"github.com/Qaquka/aatm-qaquka/internal/service"
	"github.com/Qaquka/aatm-qaquka/internal/settings"
)

var sensitive = regexp.MustCompile(`(?i)password|token|secret`)

const redactedMessage = "Operation failed"

var badRequest = []error{
	packager.ErrInvalidRequest,
	browse.ErrNotDirectory,
	settings.ErrInvalid,
	push.ErrInvalidArtifact,
	push.ErrInvalidRequest,
	push.ErrDisabled,
	push.ErrMisconfigured,
	service.ErrAuthDisabled,
}

func statusFor(err error) int {
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	switch {
	case errors.Is(err, sandbox.ErrOutOfBounds):
		return http.StatusForbidden
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, push.ErrUnknownTarget), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, push.ErrRateLimited):
		return http.StatusTooManyRequests
	// 401 is kept for the console session; a downstream credential
	// rejection is a gateway failure tagged with its kind.
	case errors.Is(err, push.ErrAuth), errors.Is(err, push.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, mediainfo.ErrUnavailable), errors.Is(err, packager.ErrNotStarted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to its status and a JSON body. Remote failures carry
// their kind, classified message, truncated details and Retry-After.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": safeMessage(err.Error())}

	var pushErr *push.Error
	if errors.As(err, &pushErr) {
		if pushErr.Kind != "" {
			body["kind"] = pushErr.Kind
		}
		if pushErr.Message != "" {
			body["error"] = safeMessage(pushErr.Message)
		}
		if pushErr.Details != "" && !sensitive.MatchString(pushErr.Details) {
			body["details"] = pushErr.Details
		}
		if pushErr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(pushErr.RetryAfter.Seconds())))
		}
	}

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, body)
}

func safeMessage(msg string) string {
	if sensitive.MatchString(msg) {
		return redactedMessage
	}
	return msg
}

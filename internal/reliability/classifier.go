package reliability

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Kind is a coarse failure class for upstream provider errors.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindCanceled    Kind = "canceled"
	KindRateLimited Kind = "rate_limited"
	KindAuth        Kind = "auth"
	KindUnavailable Kind = "unavailable"
	KindBadRequest  Kind = "bad_request"
	KindEmpty       Kind = "empty"
	KindUnknown     Kind = "unknown"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Retryable reports whether a later attempt of the same request may succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindRateLimited, KindUnavailable, KindEmpty:
		return true
	default:
		return false
	}
}

// KindForStatus maps an HTTP status code to a Kind. Zero means unknown.
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500:
		return KindUnavailable
	case code >= 400:
		return KindBadRequest
	default:
		return KindUnknown
	}
}

// Classify maps err to a Kind. status is the upstream HTTP status when the
// caller could extract one, otherwise 0.
func Classify(err error, status int) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	if status > 0 {
		return KindForStatus(status)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindUnavailable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindUnavailable
	}
	return KindUnknown
}

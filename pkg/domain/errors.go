package domain

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	// ErrClipNotFound covers missing, expired, locked and exhausted clips alike.
	ErrClipNotFound       = NewErr("CLIP_NOT_FOUND", "clip not found", http.StatusNotFound)
	ErrContentRequired    = NewErr("CONTENT_REQUIRED", "content required", http.StatusBadRequest)
	ErrContentTooLarge    = NewErr("CONTENT_TOO_LARGE", "content too large", http.StatusBadRequest)
	ErrInvalidExpiration  = NewErr("INVALID_EXPIRATION", "expirationMinutes must be between 1 and 10080", http.StatusBadRequest)
	ErrInvalidContentType = NewErr("INVALID_CONTENT_TYPE", "contentType must be text, url or code", http.StatusBadRequest)
	ErrInvalidMaxAccess   = NewErr("INVALID_MAX_ACCESS", "maxAccess must be positive", http.StatusBadRequest)
	ErrPasswordTooLong    = NewErr("PASSWORD_TOO_LONG", "password too long", http.StatusBadRequest)
	ErrInvalidPassword    = NewErr("INVALID_PASSWORD", "password contains disallowed characters", http.StatusBadRequest)
	ErrInvalidRequest     = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrRateLimitExceeded  = NewErr("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrServiceClosed      = NewErr("SERVICE_CLOSED", "service shutting down", http.StatusServiceUnavailable)
	ErrInternalServer     = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }
func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

type ErrResp struct {
	Error ErrDetail `json:"error"`
}
type ErrDetail struct {
	Code      string `json:"code"`
	Msg       string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func ToResp(err error) ErrResp {
	if e, ok := errors.Cause(err).(*Err); ok {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	return ErrResp{Error: ErrDetail{Code: ErrInternalServer.Code, Msg: ErrInternalServer.Msg}}
}
func Status(err error) int {
	if e, ok := errors.Cause(err).(*Err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

// AppError is the error every engagement operation returns to its caller.
// Code is stable and client visible; Message is human readable.
type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Is matches any AppError carrying the same code, so callers can write
// errors.Is(err, apperr.ErrNotFound).
func (appErr *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == appErr.Code
}

const (
	CodeNotFound      = "NOT_FOUND"
	CodeNotPermitted  = "NOT_PERMITTED"
	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeDepthExceeded = "DEPTH_EXCEEDED"
	CodeRateLimited   = "RATE_LIMITED"
	CodeQuotaExceeded = "QUOTA_EXCEEDED"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeDatabase      = "DATABASE_ERROR"
)

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound      = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrNotPermitted  = &AppError{Code: CodeNotPermitted, Message: "not permitted"}
	ErrAlreadyExists = &AppError{Code: CodeAlreadyExists, Message: "already exists"}
	ErrDepthExceeded = &AppError{Code: CodeDepthExceeded, Message: "depth exceeded"}
	ErrRateLimited   = &AppError{Code: CodeRateLimited, Message: "rate limited"}
	ErrQuotaExceeded = &AppError{Code: CodeQuotaExceeded, Message: "quota exceeded"}
	ErrInvalidInput  = &AppError{Code: CodeInvalidInput, Message: "invalid input"}
	ErrUnauthorized  = &AppError{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrDatabase      = &AppError{Code: CodeDatabase, Message: "database error"}
)

func New(code string, message string, origin error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  origin,
	}
}

func NotFound(format string, args ...any) *AppError {
	return New(CodeNotFound, fmt.Sprintf(format, args...), nil)
}

func NotPermitted(format string, args ...any) *AppError {
	return New(CodeNotPermitted, fmt.Sprintf(format, args...), nil)
}

func AlreadyExists(format string, args ...any) *AppError {
	return New(CodeAlreadyExists, fmt.Sprintf(format, args...), nil)
}

func DepthExceeded(limit int) *AppError {
	return New(CodeDepthExceeded, fmt.Sprintf("回复层级超过限制，最多支持%d层嵌套", limit), nil)
}

func RateLimited(message string) *AppError {
	return New(CodeRateLimited, message, nil)
}

func QuotaExceeded(message string) *AppError {
	return New(CodeQuotaExceeded, message, nil)
}

func InvalidInput(format string, args ...any) *AppError {
	return New(CodeInvalidInput, fmt.Sprintf(format, args...), nil)
}

// FromStore converts an error coming back from gorm. AppErrors pass through
// untouched so a transaction callback can return them directly.
func FromStore(err error, notFound string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return New(CodeNotFound, notFound, nil)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return New(CodeAlreadyExists, "记录已存在", err)
	}
	return New(CodeDatabase, "数据库操作失败", err)
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeDatabase
}

// HTTPStatus maps an error to the status an HTTP layer should answer with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNotPermitted:
		return http.StatusForbidden
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeDepthExceeded, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeRateLimited, CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

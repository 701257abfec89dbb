package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeUnavailable      ErrorCode = "UNAVAILABLE"
	CodeFailedPrecond    ErrorCode = "FAILED_PRECONDITION"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeResourceExhaust  ErrorCode = "RESOURCE_EXHAUSTED"
	CodeInternal         ErrorCode = "INTERNAL"
	CodeCanceled         ErrorCode = "CANCELED"
	CodeDeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"
	CodeAborted          ErrorCode = "ABORTED"
)

var (
	ErrToolNotFound       = errors.New("tool not found")
	ErrTierDenied         = errors.New("tool requires a higher tier")
	ErrInvalidToolID      = errors.New("invalid tool id")
	ErrTransportClosed    = errors.New("transport closed")
	ErrHostReloaded       = errors.New("host reloaded before work item executed")
	ErrMethodNotFound     = errors.New("method not found")
	ErrInvalidParams      = errors.New("invalid params")
	ErrRateLimited        = errors.New("rate limited")
	ErrServerRunning      = errors.New("server already running")
	ErrHostIncompatible   = errors.New("host version incompatible")
	ErrDispatcherDetached = errors.New("dispatcher detached")
)

type Error struct {
	Code      ErrorCode
	Op        string
	Message   string
	Cause     error
	Retryable bool
	Meta      map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:      existing.Code,
			Op:        op,
			Message:   existing.Message,
			Cause:     existing.Cause,
			Retryable: existing.Retryable,
			Meta:      existing.Meta,
		}
	}
	return E(code, op, "", err)
}

func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	var timeoutErr *TimeoutError
	var fault *ToolFault
	switch {
	case errors.Is(err, ErrInvalidParams), errors.Is(err, ErrInvalidToolID):
		return CodeInvalidArgument, true
	case errors.Is(err, ErrToolNotFound), errors.Is(err, ErrMethodNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrTierDenied):
		return CodePermissionDenied, true
	case errors.Is(err, ErrRateLimited):
		return CodeResourceExhaust, true
	case errors.Is(err, ErrTransportClosed), errors.Is(err, ErrDispatcherDetached):
		return CodeUnavailable, true
	case errors.Is(err, ErrHostReloaded):
		return CodeAborted, true
	case errors.Is(err, ErrServerRunning), errors.Is(err, ErrHostIncompatible):
		return CodeFailedPrecond, true
	case errors.As(err, &timeoutErr):
		return CodeDeadlineExceeded, true
	case errors.As(err, &fault):
		return CodeInternal, true
	default:
		return "", false
	}
}

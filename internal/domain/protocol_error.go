package domain

import "encoding/json"

const (
	ErrCodeParseError      = -32700
	ErrCodeInvalidRequest  = -32600
	ErrCodeMethodNotFound  = -32601
	ErrCodeInvalidParams   = -32602
	ErrCodeInternalError   = -32603
	ErrCodeTierDenied      = -32002
	ErrCodeRateLimited     = -32003
	ErrCodeDispatchTimeout = -32004
	ErrCodeHostReloaded    = -32005
)

// ProtocolError captures JSON-RPC error details for propagation.
type ProtocolError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// NewProtocolError builds a ProtocolError, encoding data when present.
func NewProtocolError(code int64, message string, data any) *ProtocolError {
	perr := &ProtocolError{Code: code, Message: message}
	if data == nil {
		return perr
	}
	raw, err := json.Marshal(data)
	if err == nil {
		perr.Data = raw
	}
	return perr
}

// RateLimitData is attached to RateLimited errors.
type RateLimitData struct {
	MaxRequests   int `json:"maxRequests"`
	WindowSeconds int `json:"windowSeconds"`
	RetryAfter    int `json:"retryAfter"`
}

// TierDeniedData is attached to TierDenied errors.
type TierDeniedData struct {
	ToolID       string `json:"toolId"`
	RequiredTier string `json:"requiredTier"`
	CurrentTier  string `json:"currentTier"`
}

// FaultData is attached to InternalError responses caused by tool faults.
type FaultData struct {
	ExceptionType string `json:"exceptionType"`
	StackTrace    string `json:"stackTrace,omitempty"`
}

// TimeoutData is attached to DispatchTimeout errors.
type TimeoutData struct {
	ToolID         string `json:"toolId,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

package router

import (
	"bytes"
	"encoding/json"
	"fmt"

	"editormcp/internal/domain"
)

// ParseRequest decodes one line into a request envelope. Malformed JSON
// yields a ParseError; a document that is not a request object yields an
// InvalidRequest error.
func ParseRequest(line []byte) (domain.Request, *domain.ProtocolError) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return domain.Request{}, domain.NewProtocolError(domain.ErrCodeParseError, "Parse error", nil)
	}
	if trimmed[0] != '{' {
		return domain.Request{}, domain.NewProtocolError(domain.ErrCodeInvalidRequest, "Invalid Request: expected an object", nil)
	}
	var req domain.Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return domain.Request{}, domain.NewProtocolError(domain.ErrCodeInvalidRequest, fmt.Sprintf("Invalid Request: %v", err), nil)
	}
	if req.HasID() && !validID(req.ID) {
		return domain.Request{}, domain.NewProtocolError(domain.ErrCodeInvalidRequest, "Invalid Request: id must be a string or number", nil)
	}
	return req, nil
}

// RecoverID extracts the id from a line that may otherwise be rejected.
func RecoverID(line []byte) json.RawMessage {
	var envelope struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(line), &envelope); err != nil {
		return nil
	}
	if !validID(envelope.ID) {
		return nil
	}
	return envelope.ID
}

// ErrorResponseForLine builds the response for a line ParseRequest rejected.
func ErrorResponseForLine(line []byte, perr *domain.ProtocolError) domain.Response {
	if perr.Code == domain.ErrCodeParseError {
		return domain.NewErrorResponse(nil, perr)
	}
	return domain.NewErrorResponse(RecoverID(line), perr)
}

func validID(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	var value any
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return false
	}
	switch value.(type) {
	case string, float64:
		return true
	default:
		return false
	}
}

package openpay

import (
	"errors"
	"fmt"
)

// FlowError represents a payment-flow-specific error
type FlowError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeResolutionFailed      = "resolution_failed"
	ErrCodeUnexpectedInteraction = "unexpected_interaction"
	ErrCodeGrantNotFinalized     = "grant_not_finalized"
	ErrCodeForbidden             = "forbidden"
	ErrCodeTimeout               = "timeout"
	ErrCodeInvalidPayload        = "invalid_payload"
	ErrCodeProtocolError         = "protocol_error"
)

// NewFlowError creates a new flow error
func NewFlowError(code, message string, details map[string]interface{}) *FlowError {
	return &FlowError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ErrorCode returns the flow error code carried by err, or an empty string
// if err is not a FlowError.
func ErrorCode(err error) string {
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		return flowErr.Code
	}
	return ""
}

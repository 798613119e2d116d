package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidReference ErrorCode = "INVALID_REFERENCE"

	ErrCodeSignatureInvalid ErrorCode = "SIGNATURE_INVALID"
	ErrCodeReplayDetected   ErrorCode = "REPLAY_DETECTED"
	ErrCodeDuplicateEvent   ErrorCode = "DUPLICATE_EVENT"
	ErrCodeUnparseableEvent ErrorCode = "UNPARSEABLE_EVENT"

	ErrCodeOrderNotFound          ErrorCode = "ORDER_NOT_FOUND"
	ErrCodeTransactionNotFound    ErrorCode = "TRANSACTION_NOT_FOUND"
	ErrCodeAmountMismatch         ErrorCode = "AMOUNT_MISMATCH"
	ErrCodeReconciliationConflict ErrorCode = "RECONCILIATION_CONFLICT"
	ErrCodeGatewayUnavailable     ErrorCode = "GATEWAY_UNAVAILABLE"

	ErrCodeRefundNotFound       ErrorCode = "REFUND_NOT_FOUND"
	ErrCodeRefundNotAllowed     ErrorCode = "REFUND_NOT_ALLOWED"
	ErrCodeRefundAmountExceeded ErrorCode = "REFUND_AMOUNT_EXCEEDED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewExternalError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
	}
}

var (
	ErrSignatureInvalid = NewUnauthorizedError("webhook signature verification failed", ErrCodeSignatureInvalid)
	ErrReplayDetected   = NewValidationError("event timestamp is outside the replay window", ErrCodeReplayDetected)
	ErrUnparseableEvent = NewValidationError("event payload could not be parsed", ErrCodeUnparseableEvent)

	ErrOrderNotFound       = NewNotFoundError("no order matches this payment reference", ErrCodeOrderNotFound)
	ErrTransactionNotFound = NewNotFoundError("payment transaction not found", ErrCodeTransactionNotFound)

	ErrAmountMismatch         = NewConflictError("paid amount does not match the order amount", ErrCodeAmountMismatch)
	ErrReconciliationConflict = NewConflictError("transition would overwrite a settled transaction", ErrCodeReconciliationConflict)
	ErrGatewayUnavailable     = NewExternalError("payment gateway is unavailable", ErrCodeGatewayUnavailable)

	ErrRefundNotFound       = NewNotFoundError("refund not found", ErrCodeRefundNotFound)
	ErrRefundNotAllowed     = NewValidationError("refunds are only allowed against successful transactions", ErrCodeRefundNotAllowed)
	ErrRefundAmountExceeded = NewValidationError("refund amount exceeds the refundable balance", ErrCodeRefundAmountExceeded)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}

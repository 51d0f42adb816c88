package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures so callers can decide between retrying,
// failing closed, or skipping a symbol.
type ErrorCode int

const (
	CodeUnknown ErrorCode = iota
	// CodeTransient covers network failures, timeouts and 429/5xx responses.
	CodeTransient
	// CodeRejected is a broker business-rule rejection. Never retried.
	CodeRejected
	// CodeNoPrice means no usable price exists for the decision.
	CodeNoPrice
	// CodeInsufficientData means not enough candle history.
	CodeInsufficientData
	// CodeInvariant is a ledger/application invariant violation.
	CodeInvariant
	// CodeFallbackSkipped marks a call skipped because the broker is in fallback mode.
	CodeFallbackSkipped
	CodeConfig
)

func (c ErrorCode) String() string {
	switch c {
	case CodeTransient:
		return "transient"
	case CodeRejected:
		return "rejected"
	case CodeNoPrice:
		return "no_price"
	case CodeInsufficientData:
		return "insufficient_data"
	case CodeInvariant:
		return "invariant"
	case CodeFallbackSkipped:
		return "fallback_skipped"
	case CodeConfig:
		return "config"
	default:
		return "unknown"
	}
}

// TradeError is a classified error with an optional cause.
type TradeError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func NewError(code ErrorCode, message string) *TradeError {
	return &TradeError{Code: code, Message: message}
}

func Errorf(code ErrorCode, format string, args ...any) *TradeError {
	return &TradeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func WrapError(code ErrorCode, message string, cause error) *TradeError {
	return &TradeError{Code: code, Message: message, Cause: cause}
}

func (e *TradeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *TradeError) Unwrap() error {
	return e.Cause
}

// CodeOf returns the code of the first TradeError in the chain.
func CodeOf(err error) ErrorCode {
	var e *TradeError
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

var (
	ErrNoPrice         = NewError(CodeNoPrice, "no price available")
	ErrFallbackSkipped = NewError(CodeFallbackSkipped, "skipped in fallback mode")
	ErrNoPosition      = NewError(CodeInvariant, "no tracked quantity to sell")
)

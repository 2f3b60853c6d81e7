package cheyenne

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error codes as constants
const (
	ErrCodeBadMessage       = "BAD_MESSAGE"
	ErrCodeHandshakeFailed  = "HANDSHAKE_FAILED"
	ErrCodeConnectionFailed = "CONNECTION_FAILED"
	ErrCodeTimeout          = "TIMEOUT_ERROR"
	ErrCodeOverflow         = "QUEUE_OVERFLOW"
	ErrCodeConfigInvalid    = "CONFIG_INVALID"
	ErrCodeClosed           = "CLOSED"
)

// CheyenneError is an error with a code and optional structured details.
type CheyenneError struct {
	Message   string
	Code      string
	Details   map[string]any
	Timestamp time.Time
	cause     error
}

func NewCheyenneError(message, code string) *CheyenneError {
	return &CheyenneError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func (e *CheyenneError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%s)", e.Message, e.Code))
	if len(e.Details) > 0 {
		sb.WriteString(":")
		for k, v := range e.Details {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, v))
		}
	}
	return sb.String()
}

func (e *CheyenneError) Unwrap() error {
	return e.cause
}

// AddDetail attaches a detail field and returns the error for chaining.
func (e *CheyenneError) AddDetail(key string, value any) *CheyenneError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// GetDetail returns a detail field if present.
func (e *CheyenneError) GetDetail(key string) (any, bool) {
	if e.Details == nil {
		return nil, false
	}
	v, ok := e.Details[key]
	return v, ok
}

// WrapError wraps any error as a CheyenneError with the given code.
func WrapError(err error, code string) *CheyenneError {
	if err == nil {
		return nil
	}
	ce := NewCheyenneError(err.Error(), code)
	ce.cause = err
	return ce
}

// Specific error creators with common codes

// NewBadMessageError reports a malformed inbound message. Bad messages are
// recoverable: the read loop counts them and only forces a reconnect after
// a consecutive-count threshold.
func NewBadMessageError(reason string, raw []byte) *CheyenneError {
	e := NewCheyenneError(reason, ErrCodeBadMessage)
	if len(raw) > 0 {
		e.AddDetail("raw", string(raw))
	}
	return e
}

func newBadMessageCause(reason string, raw []byte, cause error) *CheyenneError {
	e := NewBadMessageError(reason, raw)
	e.cause = cause
	return e
}

// NewHandshakeError reports a failed validation handshake. Handshake errors
// surface only from ValidateTarget, never during steady-state operation.
func NewHandshakeError(reason string) *CheyenneError {
	return NewCheyenneError(reason, ErrCodeHandshakeFailed)
}

func NewConnectionError(message string) *CheyenneError {
	return NewCheyenneError(message, ErrCodeConnectionFailed)
}

func NewTimeoutError(message string) *CheyenneError {
	return NewCheyenneError(message, ErrCodeTimeout)
}

func NewConfigError(message string) *CheyenneError {
	return NewCheyenneError(message, ErrCodeConfigInvalid)
}

// IsErrorCode reports whether err is a CheyenneError carrying the code.
func IsErrorCode(err error, code string) bool {
	var ce *CheyenneError
	return errors.As(err, &ce) && ce.Code == code
}

// IsBadMessage reports whether err is a recoverable bad-message error.
func IsBadMessage(err error) bool {
	return IsErrorCode(err, ErrCodeBadMessage)
}

// IsHandshakeFailure reports whether err is a validation handshake failure.
func IsHandshakeFailure(err error) bool {
	return IsErrorCode(err, ErrCodeHandshakeFailed)
}

// IsRetryableError reports whether the condition is expected to clear on a
// later attempt.
func IsRetryableError(err error) bool {
	var ce *CheyenneError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Code {
	case ErrCodeConnectionFailed, ErrCodeTimeout, ErrCodeBadMessage:
		return true
	}
	return false
}

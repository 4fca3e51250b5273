package domain

import (
	"errors"
	"fmt"
)

// Error codes carried by the websocket error event and the HTTP error body.
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeSessionClosed = "SESSION_CLOSED"
	ErrCodeUnavailable   = "SERVICE_UNAVAILABLE"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// AuthReason tells the client why a handshake was refused.
type AuthReason string

const (
	AuthInvalid AuthReason = "invalid"
	AuthExpired AuthReason = "expired"
	AuthUnknown AuthReason = "unknown"
)

type AuthError struct {
	Reason AuthReason
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

type PermissionError struct {
	ActorID string
	Action  string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s is not allowed to %s", e.ActorID, e.Action)
}

type SessionClosedError struct {
	SessionID string
}

func (e *SessionClosedError) Error() string {
	return fmt.Sprintf("session %s is closed", e.SessionID)
}

// ValidationError rejects a malformed intent before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransientStoreError wraps a persistence failure. The operation had no
// effect and may be retried.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

// ErrorCode maps an error from the taxonomy to its wire code and the
// client-facing reason. Anything outside the taxonomy is internal.
func ErrorCode(err error) (code, reason string) {
	var (
		authErr      *AuthError
		notFoundErr  *NotFoundError
		permErr      *PermissionError
		closedErr    *SessionClosedError
		validErr     *ValidationError
		transientErr *TransientStoreError
	)

	switch {
	case errors.As(err, &authErr):
		return ErrCodeUnauthorized, string(authErr.Reason)
	case errors.As(err, &notFoundErr):
		return ErrCodeNotFound, notFoundErr.Error()
	case errors.As(err, &permErr):
		return ErrCodeForbidden, "permission denied"
	case errors.As(err, &closedErr):
		return ErrCodeSessionClosed, closedErr.Error()
	case errors.As(err, &validErr):
		return ErrCodeBadRequest, validErr.Error()
	case errors.As(err, &transientErr):
		return ErrCodeUnavailable, "temporarily unavailable, retry later"
	default:
		return ErrCodeInternalError, "internal error"
	}
}

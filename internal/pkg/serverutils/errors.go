package serverutils

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// AppError is an expected failure with a stable short code. Its message and
// data are safe to show to the caller.
type AppError struct {
	Status  int
	Code    string
	Message string
	Data    interface{}
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

// WithData returns a copy of e carrying data.
func (e *AppError) WithData(data interface{}) *AppError {
	out := *e
	out.Data = data
	return &out
}

func ErrUnauthorized(message string) *AppError {
	return NewAppError(fiber.StatusUnauthorized, "unauthorized", message)
}

func ErrForbidden(message string) *AppError {
	return NewAppError(fiber.StatusForbidden, "forbidden", message)
}

func ErrRateLimited() *AppError {
	return NewAppError(fiber.StatusTooManyRequests, "rate_limited", "Too many requests, retry after the current window")
}

func ErrSessionNotFound() *AppError {
	return NewAppError(fiber.StatusNotFound, "session_not_found", "Session not found")
}

func ErrInvalidBody(message string) *AppError {
	return NewAppError(fiber.StatusBadRequest, "invalid_body", message)
}

func ErrInvalidConfirmation() *AppError {
	return NewAppError(fiber.StatusBadRequest, "invalid_confirmation", `Confirmation must be "DELETE"`)
}

func ErrSessionActive() *AppError {
	return NewAppError(fiber.StatusConflict, "session_active", "An active session is still running")
}

// ErrConsentRequired is a 403 "forbidden" whose data.reason names the consent
// decision: session_not_active, consent_pending, consent_revoked,
// consent_expired or consent_not_yet_granted.
func ErrConsentRequired(reason string) *AppError {
	return NewAppError(fiber.StatusForbidden, "forbidden", "Consent check failed").WithData(fiber.Map{"reason": reason})
}

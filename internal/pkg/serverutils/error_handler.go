package serverutils

import (
	"errors"

	"interview-copilot-be/internal/dto"
	"interview-copilot-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// NewErrorHandler builds the fiber.Config ErrorHandler. Anything that is not a
// known error type becomes internal_error: the caller only gets a correlation
// id, the full error goes to the log under the same id.
func NewErrorHandler(log logger.ILogger) fiber.ErrorHandler {
	return func(ctx *fiber.Ctx, err error) error {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return ctx.Status(appErr.Status).JSON(ErrorResponse{
				Error:   appErr.Code,
				Message: appErr.Message,
				Data:    appErr.Data,
			})
		}

		var quotaErr *dto.QuotaExceededError
		if errors.As(err, &quotaErr) {
			return ctx.Status(fiber.StatusForbidden).JSON(ErrorResponse{
				Error:   "quota_exceeded",
				Message: "Copilot usage quota exceeded",
				Data:    quotaErr.Data(),
			})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse{
				Error:   codeForStatus(fiberErr.Code),
				Message: fiberErr.Message,
			})
		}

		correlationId := uuid.NewString()
		details := map[string]interface{}{
			"correlation_id": correlationId,
			"error":          err,
			"method":         ctx.Method(),
			"path":           ctx.Path(),
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			details["sqlstate"] = pgErr.Code
			details["constraint"] = pgErr.ConstraintName
			details["table"] = pgErr.TableName
		}
		log.Error("HTTP", "Unhandled request error", details)

		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:         "internal_error",
			CorrelationId: correlationId,
		})
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return "invalid_body"
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusForbidden:
		return "forbidden"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case fiber.StatusTooManyRequests:
		return "rate_limited"
	}
	if status >= fiber.StatusInternalServerError {
		return "internal_error"
	}
	return "request_failed"
}

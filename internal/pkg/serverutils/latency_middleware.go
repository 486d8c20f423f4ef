package serverutils

import (
	"interview-copilot-be/internal/pkg/logger"
	"interview-copilot-be/internal/tracer"
	"interview-copilot-be/pkg/copilot/latency"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDKey is where the requestid middleware stores the id.
const RequestIDKey = "requestid"

// LatencyMiddleware opens a timeline for the request, exposes it through the
// user context, and tears it down once the handler chain returns. Must be
// registered after requestid and otelfiber.
func LatencyMiddleware(tracker *latency.Tracker, log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		requestId, _ := ctx.Locals(RequestIDKey).(string)
		if requestId == "" {
			requestId = uuid.NewString()
		}

		tl := tracker.Begin(requestId)
		ctx.SetUserContext(latency.WithTimeline(ctx.UserContext(), tl))

		err := ctx.Next()

		snap, ok := tracker.Finish(requestId)
		if !ok {
			return err
		}
		tracer.RecordTimeline(trace.SpanFromContext(ctx.UserContext()), snap)
		if len(snap.Stages) > 0 {
			log.Info("Latency", "Request timeline", map[string]interface{}{
				"request_id": snap.RequestId,
				"session_id": snap.SessionId,
				"method":     ctx.Method(),
				"route":      ctx.Route().Path,
				"stages":     snap.Stages,
				"total_ms":   snap.TotalMs,
			})
		}
		return err
	}
}

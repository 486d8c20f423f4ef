package controller

import (
	"interview-copilot-be/internal/dto"
	"interview-copilot-be/internal/pkg/serverutils"
	"interview-copilot-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ICopilotController interface {
	RegisterRoutes(r fiber.Router)
	Start(ctx *fiber.Ctx) error
	Heartbeat(ctx *fiber.Ctx) error
	Stop(ctx *fiber.Ctx) error
	IngestEvent(ctx *fiber.Ctx) error
	ListEvents(ctx *fiber.Ctx) error
	Suggest(ctx *fiber.Ctx) error
	UpdateConsent(ctx *fiber.Ctx) error
	ListSessions(ctx *fiber.Ctx) error
	GetSession(ctx *fiber.Ctx) error
	GetQuota(ctx *fiber.Ctx) error
	Purge(ctx *fiber.Ctx) error
}

type copilotController struct {
	copilotService service.ICopilotService
	jwtSecret      string
}

func NewCopilotController(copilotService service.ICopilotService, jwtSecret string) ICopilotController {
	return &copilotController{
		copilotService: copilotService,
		jwtSecret:      jwtSecret,
	}
}

func (c *copilotController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/copilot/v1")
	h.Use(serverutils.NewJwtMiddleware(c.jwtSecret))
	h.Get("quota", c.GetQuota)
	h.Post("purge", c.Purge)
	h.Get("sessions", c.ListSessions)
	h.Post("sessions", c.Start)
	h.Get("sessions/:id", c.GetSession)
	h.Post("sessions/:id/heartbeat", c.Heartbeat)
	h.Post("sessions/:id/stop", c.Stop)
	h.Post("sessions/:id/consent", c.UpdateConsent)
	h.Get("sessions/:id/events", c.ListEvents)
	h.Post("sessions/:id/events", c.IngestEvent)
	h.Post("sessions/:id/suggestions", c.Suggest)
}

func sessionParam(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		// a malformed id cannot name any session
		return uuid.Nil, serverutils.ErrSessionNotFound()
	}
	return id, nil
}

// parseBody decodes and validates a JSON body into req.
func parseBody(ctx *fiber.Ctx, req interface{}) error {
	if err := ctx.BodyParser(req); err != nil {
		return serverutils.ErrInvalidBody("Malformed request body")
	}
	return serverutils.ValidateRequest(req)
}

func (c *copilotController) Start(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.StartSessionRequest
	if len(ctx.Body()) > 0 {
		if err := parseBody(ctx, &req); err != nil {
			return err
		}
	}

	res, err := c.copilotService.Start(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Session started", res))
}

func (c *copilotController) Heartbeat(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	sessionId, err := sessionParam(ctx)
	if err != nil {
		return err
	}

	res, err := c.copilotService.Heartbeat(ctx.UserContext(), userId, sessionId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Heartbeat recorded", res))
}

func (c *copilotController) Stop(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	sessionId, err := sessionParam(ctx)
	if err != nil {
		return err
	}

	res, err := c.copilotService.Stop(ctx.UserContext(), userId, sessionId)
	if err != nil {
		return err
	}

	msg := "Session stopped"
	if res.AlreadyStopped {
		msg = "Session already finished"
	}
	return ctx.JSON(serverutils.SuccessResponse(msg, res))
}

func (c *copilotController) IngestEvent(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	sessionId, err := sessionParam(ctx)
	if err != nil {
		return err
	}

	var req dto.IngestEventRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.copilotService.IngestEvent(ctx.UserContext(), userId, sessionId, &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Event stored", res))
}

func (c *copilotController) ListEvents(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	sessionId, err := sessionParam(ctx)
	if err != nil {
		return err
	}

	var req dto.ListEventsRequest
	if err := ctx.QueryParser(&req); err != nil {
		return serverutils.ErrInvalidBody("Malformed query")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.copilotService.ListEvents(ctx.UserContext(), userId, sessionId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list events", res))
}

func (c *copilotController) Suggest(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	sessionId, err := sessionParam(ctx)
	if err != nil {
		return err
	}

	var req dto.SuggestionRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.copilotService.Suggest(ctx.UserContext(), userId, sessionId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success generate suggestions", res))
}

func (c *copilotController) UpdateConsent(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	sessionId, err := sessionParam(ctx)
	if err != nil {
		return err
	}

	var req dto.ConsentRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.copilotService.UpdateConsent(ctx.UserContext(), userId, sessionId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Consent updated", res))
}

func (c *copilotController) ListSessions(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.copilotService.ListSessions(ctx.UserContext(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list sessions", res))
}

func (c *copilotController) GetSession(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	sessionId, err := sessionParam(ctx)
	if err != nil {
		return err
	}

	res, err := c.copilotService.GetSession(ctx.UserContext(), userId, sessionId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get session", res))
}

func (c *copilotController) GetQuota(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.copilotService.GetQuota(ctx.UserContext(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get quota", res))
}

func (c *copilotController) Purge(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.PurgeRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.copilotService.Purge(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Copilot data purged", res))
}

package controller

import (
	"interview-copilot-be/internal/dto"
	"interview-copilot-be/internal/pkg/serverutils"
	"interview-copilot-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

// LiveStats reports in-process counters for the admin dashboard.
type LiveStats interface {
	ConnectedUsers() int
}

type InFlight interface {
	Len() int
}

type IAdminController interface {
	RegisterRoutes(r fiber.Router)
	Sweep(ctx *fiber.Ctx) error
	Stats(ctx *fiber.Ctx) error
}

type adminController struct {
	retentionService service.IRetentionService
	live             LiveStats
	inFlight         InFlight
	jwtSecret        string
}

func NewAdminController(retentionService service.IRetentionService, live LiveStats, inFlight InFlight, jwtSecret string) IAdminController {
	return &adminController{
		retentionService: retentionService,
		live:             live,
		inFlight:         inFlight,
		jwtSecret:        jwtSecret,
	}
}

func (c *adminController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/admin/v1")
	h.Use(serverutils.NewJwtMiddleware(c.jwtSecret))
	h.Use(serverutils.RequireRole("admin"))
	h.Post("retention/sweep", c.Sweep)
	h.Get("stats", c.Stats)
}

// Sweep previews by default. Sending {"dry_run": false} deletes.
func (c *adminController) Sweep(ctx *fiber.Ctx) error {
	var req dto.SweepRequest
	if len(ctx.Body()) > 0 {
		if err := parseBody(ctx, &req); err != nil {
			return err
		}
	}

	res, err := c.retentionService.Sweep(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	msg := "Retention preview"
	if !res.DryRun {
		msg = "Retention sweep completed"
	}
	return ctx.JSON(serverutils.SuccessResponse(msg, res))
}

func (c *adminController) Stats(ctx *fiber.Ctx) error {
	stats := fiber.Map{}
	if c.live != nil {
		stats["connected_users"] = c.live.ConnectedUsers()
	}
	if c.inFlight != nil {
		stats["in_flight_requests"] = c.inFlight.Len()
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get stats", stats))
}

package handler

import (
	"interview-copilot-be/internal/pkg/logger"
	"interview-copilot-be/internal/pkg/serverutils"
	"interview-copilot-be/internal/service"
	internalWS "interview-copilot-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// SessionStreamHandler upgrades authenticated requests to a websocket that
// receives the owner's session state, events and suggestions.
type SessionStreamHandler struct {
	copilotService service.ICopilotService
	hub            *internalWS.Hub
	jwtSecret      string
	logger         logger.ILogger
}

func NewSessionStreamHandler(copilotService service.ICopilotService, hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *SessionStreamHandler {
	return &SessionStreamHandler{
		copilotService: copilotService,
		hub:            hub,
		jwtSecret:      jwtSecret,
		logger:         log,
	}
}

// ServeWs accepts an optional session_id query. Without it the connection
// receives frames for every session the user owns.
func (h *SessionStreamHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	userID, err := serverutils.UserID(c)
	if err != nil {
		return err
	}

	sessionID := uuid.Nil
	if raw := c.Query("session_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return serverutils.ErrSessionNotFound()
		}
		// ownership check, so nobody can listen in on another user's session
		if _, err := h.copilotService.GetSession(c.UserContext(), userID, id); err != nil {
			return err
		}
		sessionID = id
	}

	return websocket.New(func(conn *websocket.Conn) {
		details := map[string]interface{}{"user_id": userID, "session_id": sessionID}
		h.logger.Info("SessionStreamHandler", "Starting WebSocket session", details)
		internalWS.ServeWs(h.hub, conn, userID, sessionID)
		h.logger.Info("SessionStreamHandler", "WebSocket session ended", details)
	})(c)
}

func (h *SessionStreamHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws", serverutils.NewJwtMiddleware(h.jwtSecret), h.ServeWs)
}

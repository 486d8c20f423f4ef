package serverutils

import (
	"os"
	"strings"

	"interview-copilot-be/pkg/copilot/latency"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	LocalUserID = "user_id"
	LocalRole   = "role"
)

// NewJwtMiddleware verifies an HS256 bearer token. Browsers cannot set headers
// on websocket upgrades, so a token query parameter is accepted as well.
// An empty secret falls back to JWT_SECRET.
func NewJwtMiddleware(secret string) fiber.Handler {
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	key := []byte(secret)

	return func(ctx *fiber.Ctx) error {
		tl := latency.FromContext(ctx.UserContext())
		tl.Start(latency.StageAuth)
		defer tl.End(latency.StageAuth)

		tokenStr := bearerToken(ctx)
		if tokenStr == "" {
			return ErrUnauthorized("Missing token")
		}

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return ErrUnauthorized("Invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return ErrUnauthorized("Invalid claims")
		}
		userID, _ := claims["user_id"].(string)
		if _, err := uuid.Parse(userID); err != nil {
			return ErrUnauthorized("Invalid claims")
		}
		role, _ := claims["role"].(string)

		ctx.Locals(LocalUserID, userID)
		ctx.Locals(LocalRole, role)
		return ctx.Next()
	}
}

func bearerToken(ctx *fiber.Ctx) string {
	authHeader := ctx.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ctx.Query("token")
}

// RequireRole must run after the JWT middleware.
func RequireRole(role string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if r, _ := ctx.Locals(LocalRole).(string); r != role {
			return ErrForbidden("Insufficient role")
		}
		return ctx.Next()
	}
}

// UserID reads the authenticated user set by the JWT middleware.
func UserID(ctx *fiber.Ctx) (uuid.UUID, error) {
	raw, _ := ctx.Locals(LocalUserID).(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrUnauthorized("Missing user")
	}
	return id, nil
}

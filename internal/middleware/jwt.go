package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/noah-isme/drivesense-api/internal/utils"
)

// UserIDKey is the fiber local holding the authenticated user id (uint).
const UserIDKey = "user_id"

// TokenVerifier resolves a bearer token to the user it was issued for.
type TokenVerifier interface {
	VerifyToken(token string) (uint, error)
}

// RequireAuth rejects requests without a valid bearer token. WebSocket
// upgrades may pass the token in the "token" query parameter instead, since
// browsers cannot set headers on them.
func RequireAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c)
		if !ok {
			return utils.Fail(c, fiber.StatusUnauthorized, "authorization token missing", nil)
		}

		userID, err := verifier.VerifyToken(token)
		if err != nil || userID == 0 {
			return utils.Fail(c, fiber.StatusUnauthorized, "invalid or expired token", nil)
		}

		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

// UserID returns the authenticated user id, or zero when absent.
func UserID(c *fiber.Ctx) uint {
	if id, ok := c.Locals(UserIDKey).(uint); ok {
		return id
	}
	return 0
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	const bearer = "bearer "

	authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if authorization != "" {
		if len(authorization) <= len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
			return "", false
		}
		token := strings.TrimSpace(authorization[len(bearer):])
		return token, token != ""
	}

	if websocket.IsWebSocketUpgrade(c) {
		token := strings.TrimSpace(c.Query("token"))
		return token, token != ""
	}

	return "", false
}

package middleware

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/gerrot/api/internal/auth"
	"github.com/gerrot/api/pkg/response"
)

// Authenticate validates the bearer token and stores the caller identity in
// the context locals. Websocket upgrades may pass the token as the
// access_token query parameter since browsers cannot set headers there.
func Authenticate(a *auth.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !a.Configured() {
			return response.Unauthorized(c, "Authentication not configured")
		}

		token, ok := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok && websocket.IsWebSocketUpgrade(c) {
			token, ok = c.Query("access_token"), c.Query("access_token") != ""
		}
		if !ok {
			if c.Get(fiber.HeaderAuthorization) == "" {
				return response.Unauthorized(c, "Missing authorization header")
			}
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		id, err := a.Authenticate(token)
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		setIdentity(c, id.UserID, id.Email, id.Name)
		return c.Next()
	}
}

// GatewayAuth reads the identity from the X-User-* headers set by the
// gateway's ForwardAuth call.
func GatewayAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}
		setIdentity(c, userID, c.Get("X-User-Email"), c.Get("X-User-Name"))
		return c.Next()
	}
}

func setIdentity(c *fiber.Ctx, userID, email, name string) {
	c.Locals("userId", userID)
	c.Locals("email", email)
	c.Locals("name", name)
}

func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}

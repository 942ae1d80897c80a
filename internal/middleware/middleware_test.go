package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type verifierStub map[string]uint

func (v verifierStub) VerifyToken(token string) (uint, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return 0, errors.New("invalid token")
}

func newProtectedApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", RequireAuth(verifierStub{"good": 7}), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": UserID(c)})
	})
	return app
}

func TestRequireAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	app := newProtectedApp()

	cases := map[string]string{
		"missing":      "",
		"wrong scheme": "Basic good",
		"empty bearer": "Bearer ",
		"unknown":      "Bearer forged",
	}

	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set(fiber.HeaderAuthorization, header)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err, name)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, name)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body), name)
		require.Equal(t, false, body["success"], name)
		resp.Body.Close()
	}
}

func TestRequireAuthSetsUserID(t *testing.T) {
	app := newProtectedApp()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "bearer good")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		UserID uint `json:"user_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, uint(7), body.UserID)
}

func TestRequireAuthQueryTokenOnlyForWebSocketUpgrade(t *testing.T) {
	app := newProtectedApp()

	req := httptest.NewRequest(http.MethodGet, "/me?token=good", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/me?token=good", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRateLimitPerUser(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if c.Get("X-User") == "2" {
			c.Locals(UserIDKey, uint(2))
		} else {
			c.Locals(UserIDKey, uint(1))
		}
		return c.Next()
	})
	app.Post("/detect", RateLimit("detect", 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/detect", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	require.Equal(t, fiber.StatusOK, do("1"))
	require.Equal(t, fiber.StatusTooManyRequests, do("1"))
	require.Equal(t, fiber.StatusOK, do("2"))
}

func TestRateLimitDisabled(t *testing.T) {
	app := fiber.New()
	app.Get("/", RateLimit("any", 0, 0), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	}
}

func TestCorrelationIDPropagates(t *testing.T) {
	app := fiber.New()
	Register(app, Config{Logger: func() *zerolog.Logger { l := zerolog.Nop(); return &l }()})
	app.Get("/api/ping", func(c *fiber.Ctx) error {
		return c.SendString(CorrelationIDFromContext(c.UserContext()))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set(CorrelationHeader, "abc-123")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "abc-123", resp.Header.Get(CorrelationHeader))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "abc-123", string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/ping", nil), -1)
	require.NoError(t, err)
	require.Len(t, resp.Header.Get(CorrelationHeader), 36)
}

func TestLatencyBucket(t *testing.T) {
	require.Equal(t, "<=50ms", latencyBucket(10*time.Millisecond))
	require.Equal(t, "<=1s", latencyBucket(600*time.Millisecond))
	require.Equal(t, ">5s", latencyBucket(6*time.Second))
}

package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/drivesense-api/internal/middleware"
	"github.com/noah-isme/drivesense-api/internal/service"
)

const (
	eventStreamPingInterval = 30 * time.Second
	eventStreamWriteTimeout = 10 * time.Second
)

// EventStreamHandler pushes detection events to the owner's live connections.
type EventStreamHandler struct {
	events service.EventService
	logger zerolog.Logger
}

// NewEventStreamHandler constructs the websocket handler.
func NewEventStreamHandler(events service.EventService, logger zerolog.Logger) *EventStreamHandler {
	return &EventStreamHandler{
		events: events,
		logger: logger.With().Str("component", "event_stream_handler").Logger(),
	}
}

// Register binds the websocket route. Callers mount it behind authentication.
func (h *EventStreamHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("correlation_id", middleware.GetCorrelationID(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *EventStreamHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals(middleware.UserIDKey).(uint)
	if userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"))
		_ = conn.Close()
		return
	}

	logger := h.logger.With().Uint("user_id", userID).Logger()
	if correlation, ok := conn.Locals("correlation_id").(string); ok && correlation != "" {
		logger = logger.With().Str("correlation_id", correlation).Logger()
	}

	events, unsubscribe := h.events.Subscribe(userID)
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventStreamPingInterval)
	defer ticker.Stop()

	logger.Info().Msg("event stream connected")
	defer logger.Info().Msg("event stream disconnected")

	for {
		select {
		case <-closed:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventStreamWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("event stream write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventStreamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	domain "github.com/XuanSon0704/Reels-Chat/domain/realtime"
	"github.com/XuanSon0704/Reels-Chat/events"
)

// identityKey is the Locals key carrying the authenticated identity from
// the upgrade middleware into the WebSocket handler.
const identityKey = "identity"

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes() {
	m.app.Get("/health", m.healthHandler)

	// The handshake is authenticated before the upgrade completes: a
	// missing or invalid credential never produces a session.
	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		identity, err := m.auth.Authenticate(c.Query("token"), c.Get("Authorization"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: err.Error(),
			})
		}

		c.Locals(identityKey, identity)
		return c.Next()
	})
	m.app.Get("/ws", websocket.New(m.handleWebSocket))

	// Internal API for the CRUD layer.
	internal := m.app.Group("/internal")
	internal.Post("/notify", m.notifyHandler)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": m.rt.Hub().ClientCount(),
			"active_rooms":      m.rt.Hub().RoomCount(),
		},
	})
}

// handleWebSocket runs one authenticated connection: bind it to the
// hub, pump frames into the router in arrival order, and tear down on
// close.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	identity, ok := c.Locals(identityKey).(domain.Identity)
	if !ok {
		// The upgrade middleware guarantees an identity; without one no
		// event may be processed.
		_ = c.Close()
		return
	}

	conn := newWSConn(c)
	router := m.rt.Router()
	router.Connect(conn, identity)

	defer func() {
		router.Disconnect(conn.ID())
		_ = c.Close()
	}()

	slog.Info("websocket connected", "connId", conn.ID(), "userId", identity.UserID)

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("websocket error", "connId", conn.ID(), "error", err)
			}
			break
		}

		router.Handle(context.Background(), conn, msg)
	}

	slog.Info("websocket disconnected", "connId", conn.ID(), "userId", identity.UserID)
}

// notifyHandler handles POST /internal/notify by queueing the payload on
// the EventBus; the realtime module consumes it and pushes to the
// target's personal room.
func (m *APIModule) notifyHandler(c *fiber.Ctx) error {
	var req NotifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "bad_request",
			Message: "Invalid request body",
		})
	}
	if req.TargetUserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "bad_request",
			Message: "targetUserId is required",
		})
	}

	event := events.NotificationQueuedEvent{
		TargetUserID: req.TargetUserID,
		Payload:      req.Payload,
		Timestamp:    time.Now().UTC(),
	}
	if err := events.NotificationQueuedV1.Publish(m.eventBus, event, nil); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "publish_failed",
			Message: "Failed to queue notification",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"queued": true,
	})
}

package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/middleware"
	"github.com/noah-isme/perception-api/internal/observability"
)

const (
	streamPingInterval = 30 * time.Second
	streamWriteTimeout = 10 * time.Second
)

// EventSubscriber opens a per-user event stream. cancel must always be called.
type EventSubscriber interface {
	Subscribe(email string) (<-chan dto.Event, func())
}

// EventHandler streams lifecycle events to the authenticated user over a websocket.
type EventHandler struct {
	subscriber EventSubscriber
	logger     zerolog.Logger
}

// NewEventHandler creates an event stream handler.
func NewEventHandler(subscriber EventSubscriber, logger zerolog.Logger) *EventHandler {
	return &EventHandler{
		subscriber: subscriber,
		logger:     logger.With().Str("component", "event_handler").Logger(),
	}
}

// Register binds the stream routes under the provided router group.
func (h *EventHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", middleware.RequestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *EventHandler) handleConnection(conn *websocket.Conn) {
	email, _ := conn.Locals(middleware.LocalUserEmail).(string)
	if email == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "identity missing"))
		_ = conn.Close()
		return
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	events, unsubscribe := h.subscriber.Subscribe(email)
	defer unsubscribe()

	observability.StreamClientsActive().Inc()
	defer observability.StreamClientsActive().Dec()

	log := h.logger.With().Str("user", email).Str("correlation_id", middleware.CorrelationIDFromContext(baseCtx)).Logger()
	log.Info().Msg("event stream connected")
	defer log.Info().Msg("event stream disconnected")

	// The client never sends data; reading only detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(dto.Event{Type: "stream.ready", Topic: email, OccurredAt: time.Now().UTC()}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				log.Debug().Err(err).Msg("failed to write event")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

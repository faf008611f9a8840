package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/weftworks/weft/pkg/ports"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Same policy as the HTTP CORS middleware
	},
}

// Handler handles WebSocket connections
type Handler struct {
	eventBus ports.EventBus
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, logger *zap.Logger) *Handler {
	return &Handler{
		eventBus: eventBus,
		logger:   logger,
	}
}

// HandleRunStream streams one run's events over a WebSocket. The categories
// query parameter narrows the stream; by default every category is sent.
func (h *Handler) HandleRunStream(c *gin.Context) {
	runID := c.Param("id")
	categories := streamCategories(c.Query("categories"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("run_id", runID),
		zap.String("client", c.ClientIP()))

	eventChan := make(chan *ports.Event, 32)
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	h.subscribe(ctx, categories, eventChan)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventChan:
			if event == nil {
				continue
			}

			// Only send events for this run
			if event.RunID != runID {
				continue
			}

			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}

			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Error("failed to write message", zap.Error(err))
				return
			}
		}
	}
}

// subscribe registers one handler per requested category. A slow client
// drops events rather than stalling the bus.
func (h *Handler) subscribe(ctx context.Context, categories []ports.Category, ch chan<- *ports.Event) {
	eventHandler := func(ctx context.Context, event ports.Event) error {
		ev := event
		select {
		case ch <- &ev:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("category", string(event.Category)))
		}
		return nil
	}

	for _, category := range categories {
		if err := h.eventBus.Subscribe(ctx, category, eventHandler); err != nil {
			h.logger.Error("failed to subscribe to events",
				zap.String("category", string(category)),
				zap.Error(err))
		}
	}
}

// streamCategories parses the comma-separated categories filter, falling
// back to every category on an empty or fully invalid filter.
func streamCategories(raw string) []ports.Category {
	if raw == "" {
		return ports.Categories()
	}
	var out []ports.Category
	for _, part := range strings.Split(raw, ",") {
		category := ports.Category(strings.TrimSpace(part))
		if ports.ValidCategory(category) {
			out = append(out, category)
		}
	}
	if len(out) == 0 {
		return ports.Categories()
	}
	return out
}

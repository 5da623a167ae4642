package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/swapgate/swapgate/internal/events"
	"github.com/swapgate/swapgate/internal/pkg/apperrors"
	"github.com/swapgate/swapgate/internal/pkg/logger"
	"github.com/swapgate/swapgate/internal/repository"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Relayers connect from their own hosts; origin is not a trust boundary here.
	CheckOrigin: func(*http.Request) bool { return true },
}

type EventHandler struct {
	store *repository.PostgresEventStore
	hub   *events.Hub
}

func NewEventHandler(store *repository.PostgresEventStore, hub *events.Hub) *EventHandler {
	return &EventHandler{store: store, hub: hub}
}

// List serves recent persisted events, filterable by offer id and type.
func (h *EventHandler) List(c *gin.Context) {
	if h.store == nil {
		c.Error(apperrors.New(apperrors.ErrNotFound, "event store not configured", nil))
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	var offerIDPtr *uint64
	if raw := c.Query("offer_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest("invalid offer_id filter"))
			return
		}
		offerIDPtr = &id
	}

	records, err := h.store.List(c.Request.Context(), offerIDPtr, c.Query("type"), limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": records, "count": len(records)})
}

// Stream upgrades to a websocket fed by the live event hub.
func (h *EventHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		c.Error(apperrors.New(apperrors.ErrNotFound, "event stream not configured", nil))
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	h.hub.Register(conn)

	// Drain reads to detect disconnects; the hub owns all writes.
	go func() {
		defer h.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

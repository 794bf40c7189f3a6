package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/narvanalabs/inviteonly/internal/events"
)

const (
	eventsWriteWait  = 10 * time.Second
	eventsPongWait   = 60 * time.Second
	eventsPingPeriod = (eventsPongWait * 9) / 10
)

// EventsHandler streams lifecycle events over a websocket.
type EventsHandler struct {
	broker   *events.Broker
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(broker *events.Broker, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Stream handles GET /v1/invitations/events. Optional query parameters:
// invitable_type with invitable_id, types (comma separated event types) and
// recent (number of past events to replay first).
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	invitable, ok := invitableParam(w, r)
	if !ok {
		return
	}
	var types []events.Type
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, events.Type(t))
			}
		}
	}
	recent, _ := strconv.Atoi(r.URL.Query().Get("recent"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", "error", err)
		return
	}
	defer conn.Close()

	sub := h.broker.Subscribe(invitable, types...)
	defer h.broker.Unsubscribe(sub)

	h.logger.Info("event stream opened",
		"subscriber_id", sub.ID,
		"invitable", invitable.String(),
	)

	// The read loop only handles control frames and notices the client leaving.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if recent > 0 {
		for _, event := range h.broker.Recent(sub, recent) {
			if !h.write(conn, event) {
				return
			}
		}
	}

	ping := time.NewTicker(eventsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			h.logger.Info("event stream closed by client", "subscriber_id", sub.ID)
			return
		case event, ok := <-sub.Ch:
			if !ok {
				return
			}
			if !h.write(conn, event) {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *EventsHandler) write(conn *websocket.Conn, event events.Event) bool {
	conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
	if err := conn.WriteJSON(event); err != nil {
		h.logger.Debug("event stream write failed", "error", err)
		return false
	}
	return true
}

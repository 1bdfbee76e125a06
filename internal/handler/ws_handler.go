package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/veriloglab/judge-backend/internal/broadcast"
	"github.com/veriloglab/judge-backend/internal/metrics"
	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/response"
	ws "github.com/veriloglab/judge-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// ContestLookup confirms a contest exists before a subscriber joins its room.
type ContestLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Contest, error)
}

// WSHandler streams live contest updates.
type WSHandler struct {
	hub      *broadcast.Hub
	contests ContestLookup
	metrics  *metrics.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *broadcast.Hub, contests ContestLookup, m *metrics.Metrics, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:      hub,
		contests: contests,
		metrics:  m,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// Live godoc
// WS /ws/v1/live?contest_id=<id>
// Upgrades to WebSocket. The optional contest_id joins that room at once;
// more rooms are joined and left with {"action":"join","contest_id":...}.
func (h *WSHandler) Live(c *gin.Context) {
	var initial *uuid.UUID
	if raw := c.Query("contest_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		if _, err := h.contests.Get(c.Request.Context(), id); err != nil {
			failService(c, h.log, err)
			return
		}
		initial = &id
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sub := h.hub.NewSubscriber(uuid.NewString())
	wsLog := h.log.With().Str("subscriber_id", sub.ID).Logger()
	wsLog.Debug().Msg("Subscriber connected")

	h.metrics.AddConnections(1)
	defer h.metrics.AddConnections(-1)

	replies := make(chan any, 8)
	if initial != nil {
		members := h.hub.Join(sub, *initial)
		replies <- ws.RoomResponse{Event: ws.EventJoined, ContestID: initial.String(), Members: members}
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		h.readPump(ctx, conn, sub, replies, wsLog)
	}()
	h.writePump(ctx, conn, sub, replies, wsLog)

	// readPump may still be handling a join; stop it before leaving rooms.
	cancel()
	_ = conn.Close()
	<-readDone
	h.hub.Unsubscribe(sub)
	wsLog.Debug().Msg("Subscriber disconnected")
}

// readPump handles client actions until the connection fails.
func (h *WSHandler) readPump(ctx context.Context, conn *websocket.Conn, sub *broadcast.Subscriber, replies chan<- any, log zerolog.Logger) {
	ws.PrepareRead(conn)

	reply := func(v any) {
		select {
		case replies <- v:
		case <-ctx.Done():
		}
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}

		var msg ws.RequestPayload
		if err := json.Unmarshal(raw, &msg); err != nil {
			reply(ws.NewError("invalid message"))
			continue
		}

		switch msg.Action {
		case ws.ActionPing:
			reply(ws.PongResponse{Event: ws.EventPong})
		case ws.ActionJoin, ws.ActionLeave:
			contestID, err := uuid.Parse(msg.ContestID)
			if err != nil {
				reply(ws.NewError("invalid contest_id"))
				continue
			}
			if msg.Action == ws.ActionLeave {
				h.hub.Leave(sub, contestID)
				reply(ws.RoomResponse{Event: ws.EventLeft, ContestID: contestID.String()})
				continue
			}
			if _, err := h.contests.Get(ctx, contestID); err != nil {
				reply(ws.NewError("contest not found"))
				continue
			}
			members := h.hub.Join(sub, contestID)
			reply(ws.RoomResponse{Event: ws.EventJoined, ContestID: contestID.String(), Members: members})
		default:
			reply(ws.NewError("unknown action: " + string(msg.Action)))
		}
	}
}

// writePump is the only writer on conn.
func (h *WSHandler) writePump(ctx context.Context, conn *websocket.Conn, sub *broadcast.Subscriber, replies <-chan any, log zerolog.Logger) {
	ticker := time.NewTicker(ws.PingPeriod)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case <-sub.Done():
			return
		case data := <-sub.C():
			err = ws.WriteRaw(conn, data)
		case v := <-replies:
			err = ws.WriteTyped(conn, v)
		case <-ticker.C:
			err = ws.WritePing(conn)
		}
		if err != nil {
			log.Debug().Err(err).Msg("Write failed")
			return
		}
	}
}

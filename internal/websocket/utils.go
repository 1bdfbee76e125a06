package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	WriteWait  = 10 * time.Second
	PongWait   = 60 * time.Second
	PingPeriod = PongWait * 9 / 10
	// MaxMessageSize bounds client messages; they only carry an action and an id.
	MaxMessageSize = 512
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return conn.WriteJSON(v)
}

// WriteRaw sends an already encoded text message.
func WriteRaw(conn *websocket.Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// WritePing sends a keepalive ping.
func WritePing(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WriteWait))
}

// NewError builds an ErrorResponse.
func NewError(errMsg string) ErrorResponse {
	return ErrorResponse{Event: EventError, Error: errMsg}
}

// PrepareRead applies the read limit and extends the read deadline on every pong.
func PrepareRead(conn *websocket.Conn) {
	conn.SetReadLimit(MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(PongWait))
	})
}

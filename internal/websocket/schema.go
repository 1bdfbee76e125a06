package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionJoin  Action = "join"
	ActionLeave Action = "leave"
	ActionPing  Action = "ping"
)

// RequestPayload is every client message. ContestID is required for join and leave.
type RequestPayload struct {
	Action    Action `json:"action"`
	ContestID string `json:"contest_id,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────
// Broadcast envelopes (leaderboard_update, contest_started, contest_ended)
// are written as-is next to these replies.

type Event string

const (
	EventJoined Event = "joined"
	EventLeft   Event = "left"
	EventPong   Event = "pong"
	EventError  Event = "error"
)

type RoomResponse struct {
	Event     Event  `json:"event"`
	ContestID string `json:"contest_id"`
	Members   int    `json:"members,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

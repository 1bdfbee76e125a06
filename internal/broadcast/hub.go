// Package broadcast fans contest updates out to live subscribers.
//
// Delivery is at-most-once: a subscriber whose buffer is full misses the
// message and nothing is replayed. Every leaderboard update carries the full
// participant record, so receivers can apply updates in any order.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/veriloglab/judge-backend/internal/config"
	"github.com/veriloglab/judge-backend/internal/metrics"
	"github.com/veriloglab/judge-backend/internal/model"
)

const (
	EventLeaderboardUpdate = "leaderboard_update"
	EventContestStarted    = "contest_started"
	EventContestEnded      = "contest_ended"
)

// Envelope is the message written to subscribers.
type Envelope struct {
	Event     string          `json:"event"`
	ContestID uuid.UUID       `json:"contest_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	SentAt    time.Time       `json:"sent_at"`
}

// NewEnvelope marshals data into an envelope stamped with the current time.
func NewEnvelope(event string, contestID uuid.UUID, data any) (*Envelope, error) {
	env := &Envelope{Event: event, ContestID: contestID, SentAt: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		env.Data = raw
	}
	return env, nil
}

type room struct {
	mu      sync.RWMutex
	members map[*Subscriber]struct{}
}

func (r *room) snapshot() []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Subscriber, 0, len(r.members))
	for s := range r.members {
		out = append(out, s)
	}
	return out
}

// Hub keeps contest rooms for this process.
type Hub struct {
	rooms   *xsync.MapOf[string, *room]
	buffer  int
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewHub creates a Hub whose subscribers buffer up to buffer messages.
func NewHub(buffer int, m *metrics.Metrics, log zerolog.Logger) *Hub {
	if buffer < 1 {
		buffer = 64
	}
	return &Hub{
		rooms:   xsync.NewMapOf[string, *room](),
		buffer:  buffer,
		metrics: m,
		log:     log.With().Str("component", "hub").Logger(),
	}
}

// NewSubscriber creates a subscriber that is not in any room yet.
func (h *Hub) NewSubscriber(id string) *Subscriber {
	return newSubscriber(id, h.buffer)
}

// Subscribe creates a subscriber already joined to the contest room.
func (h *Hub) Subscribe(contestID uuid.UUID) *Subscriber {
	s := h.NewSubscriber(uuid.NewString())
	h.Join(s, contestID)
	return s
}

// Join adds s to the contest room and returns the room size. Joining after
// Unsubscribe is a no-op that returns 0.
func (h *Hub) Join(s *Subscriber, contestID uuid.UUID) int {
	if s.closed() {
		return 0
	}
	roomID := config.CacheKey.ContestRoom(contestID.String())
	var size int
	h.rooms.Compute(roomID, func(r *room, loaded bool) (*room, bool) {
		if !loaded {
			r = &room{members: make(map[*Subscriber]struct{})}
		}
		r.mu.Lock()
		r.members[s] = struct{}{}
		size = len(r.members)
		r.mu.Unlock()
		return r, false
	})
	s.rooms.Add(roomID)

	// Unsubscribe closes before it snapshots rooms, so either it sees this
	// room or this check sees it closed.
	if s.closed() {
		h.leaveRoom(s, roomID)
		return 0
	}

	h.log.Debug().Str("subscriber_id", s.ID).Str("room", roomID).Int("members", size).Msg("Subscriber joined")
	return size
}

// Leave removes s from the contest room. Empty rooms are dropped.
func (h *Hub) Leave(s *Subscriber, contestID uuid.UUID) {
	h.leaveRoom(s, config.CacheKey.ContestRoom(contestID.String()))
}

func (h *Hub) leaveRoom(s *Subscriber, roomID string) {
	h.rooms.Compute(roomID, func(r *room, loaded bool) (*room, bool) {
		if !loaded {
			return r, true
		}
		r.mu.Lock()
		delete(r.members, s)
		empty := len(r.members) == 0
		r.mu.Unlock()
		return r, empty
	})
	s.rooms.Remove(roomID)
}

// Unsubscribe removes s from every room and closes its Done channel.
func (h *Hub) Unsubscribe(s *Subscriber) {
	s.close()
	for _, roomID := range s.rooms.ToSlice() {
		h.leaveRoom(s, roomID)
	}
}

// Members returns the number of subscribers in the contest room.
func (h *Hub) Members(contestID uuid.UUID) int {
	r, ok := h.rooms.Load(config.CacheKey.ContestRoom(contestID.String()))
	if !ok {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Rooms returns the number of non-empty rooms.
func (h *Hub) Rooms() int {
	return h.rooms.Size()
}

// Publish delivers a participant update to the contest room.
func (h *Hub) Publish(ctx context.Context, contestID uuid.UUID, update *model.ParticipantUpdate) error {
	return h.PublishEvent(ctx, contestID, EventLeaderboardUpdate, update)
}

// PublishEvent delivers an arbitrary event to the contest room.
func (h *Hub) PublishEvent(_ context.Context, contestID uuid.UUID, event string, data any) error {
	env, err := NewEnvelope(event, contestID, data)
	if err != nil {
		return err
	}
	h.Deliver(env)
	return nil
}

// Deliver writes env to every subscriber of its contest room and returns how
// many subscribers accepted it.
func (h *Hub) Deliver(env *Envelope) int {
	r, ok := h.rooms.Load(config.CacheKey.ContestRoom(env.ContestID.String()))
	if !ok {
		return 0
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Str("event", env.Event).Msg("Failed to serialize envelope")
		return 0
	}

	delivered := 0
	for _, s := range r.snapshot() {
		if s.offer(data) {
			delivered++
			h.metrics.IncBroadcast(true)
			continue
		}
		h.metrics.IncBroadcast(false)
		h.log.Warn().Str("subscriber_id", s.ID).Str("event", env.Event).Msg("Subscriber buffer full, update dropped")
	}
	return delivered
}

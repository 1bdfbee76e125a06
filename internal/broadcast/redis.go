package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/veriloglab/judge-backend/internal/config"
	"github.com/veriloglab/judge-backend/internal/model"
)

// relayMessage is what travels between instances over Redis.
type relayMessage struct {
	SourceInstance string    `json:"source_instance"`
	Envelope       *Envelope `json:"envelope"`
}

// RedisBroadcaster delivers to the local hub at once and relays every message
// to the other instances sharing the Redis server.
type RedisBroadcaster struct {
	hub        *Hub
	rdb        *redis.Client
	instanceID string
	log        zerolog.Logger

	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func NewRedisBroadcaster(hub *Hub, rdb *redis.Client, log zerolog.Logger) *RedisBroadcaster {
	id := uuid.NewString()[:8]
	return &RedisBroadcaster{
		hub:        hub,
		rdb:        rdb,
		instanceID: id,
		log:        log.With().Str("component", "broadcaster").Str("instance_id", id).Logger(),
	}
}

func (b *RedisBroadcaster) InstanceID() string { return b.instanceID }

func (b *RedisBroadcaster) Hub() *Hub { return b.hub }

// Start subscribes to every contest channel and relays remote messages into
// the local hub until ctx ends or Close is called.
func (b *RedisBroadcaster) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	ps := b.rdb.PSubscribe(ctx, config.CacheKey.ContestLivePattern())
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		_ = ps.Close()
		return fmt.Errorf("subscribe contest channels: %w", err)
	}
	b.pubsub = ps
	b.cancel = cancel

	go b.listen(ctx, ps.Channel())

	b.log.Info().Msg("Broadcaster started")
	return nil
}

// Close stops relaying.
func (b *RedisBroadcaster) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}

func (b *RedisBroadcaster) listen(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.relay(msg)
		}
	}
}

func (b *RedisBroadcaster) relay(msg *redis.Message) {
	var rm relayMessage
	if err := json.Unmarshal([]byte(msg.Payload), &rm); err != nil || rm.Envelope == nil {
		b.log.Error().Err(err).Str("channel", msg.Channel).Msg("Failed to decode relayed message")
		return
	}
	if rm.SourceInstance == b.instanceID {
		return
	}
	b.hub.Deliver(rm.Envelope)
}

// Publish delivers a participant update locally and to the other instances.
func (b *RedisBroadcaster) Publish(ctx context.Context, contestID uuid.UUID, update *model.ParticipantUpdate) error {
	return b.PublishEvent(ctx, contestID, EventLeaderboardUpdate, update)
}

// PublishEvent delivers an event locally and to the other instances.
func (b *RedisBroadcaster) PublishEvent(ctx context.Context, contestID uuid.UUID, event string, data any) error {
	env, err := NewEnvelope(event, contestID, data)
	if err != nil {
		return err
	}
	b.hub.Deliver(env)

	payload, err := json.Marshal(relayMessage{SourceInstance: b.instanceID, Envelope: env})
	if err != nil {
		return fmt.Errorf("marshal relay message: %w", err)
	}
	channel := config.CacheKey.ContestLiveChannel(contestID.String())
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

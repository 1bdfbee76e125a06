package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/veriloglab/judge-backend/internal/metrics"
	"github.com/veriloglab/judge-backend/internal/model"
)

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Topics names the topics events are written to.
type Topics struct {
	Judged      string
	Leaderboard string
	Contest     string
}

// Producer writes judge events to Kafka.
type Producer struct {
	w       MessageWriter
	topics  Topics
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewProducer connects a Kafka writer to brokers. Topics are set per message.
func NewProducer(brokers []string, topics Topics, m *metrics.Metrics, log zerolog.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 20 * time.Millisecond,
	}
	return NewProducerWithWriter(w, topics, m, log)
}

func NewProducerWithWriter(w MessageWriter, topics Topics, m *metrics.Metrics, log zerolog.Logger) *Producer {
	return &Producer{
		w:       w,
		topics:  topics,
		metrics: m,
		log:     log.With().Str("component", "kafka_producer").Logger(),
	}
}

// PublishJudged announces a finalized submission.
func (p *Producer) PublishJudged(ctx context.Context, ev SubmissionJudgedEvent) error {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if ev.ContestIDs == nil {
		ev.ContestIDs = []string{}
	}
	return p.write(ctx, p.topics.Judged, ev.UserID, ev)
}

// Publish announces a scoring change. It lets the producer sit next to the
// broadcaster as a scoring publisher.
func (p *Producer) Publish(ctx context.Context, contestID uuid.UUID, update *model.ParticipantUpdate) error {
	ev := LeaderboardUpdatedEvent{
		ContestID: contestID.String(),
		UserID:    update.UserID.String(),
		Score:     update.Score,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	return p.write(ctx, p.topics.Leaderboard, ev.ContestID, ev)
}

// PublishContestStatus announces a contest status transition.
func (p *Producer) PublishContestStatus(ctx context.Context, contest *model.Contest, status model.ContestStatus) error {
	at := contest.StartTime
	if status == model.ContestStatusEnded {
		at = contest.EndTime
	}
	ev := ContestLifecycleEvent{
		ContestID: contest.ID.String(),
		Title:     contest.Title,
		Status:    string(status),
		At:        at.UTC().Format(time.RFC3339),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	return p.write(ctx, p.topics.Contest, ev.ContestID, ev)
}

func (p *Producer) write(ctx context.Context, topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	err = p.w.WriteMessages(ctx, kafka.Message{Topic: topic, Key: []byte(key), Value: data})
	if err != nil {
		p.metrics.IncKafka(topic, "error")
		p.log.Error().Err(err).Str("topic", topic).Str("key", key).Msg("Failed to write event")
		return fmt.Errorf("write %s: %w", topic, err)
	}
	p.metrics.IncKafka(topic, "ok")
	return nil
}

func (p *Producer) Close() error {
	return p.w.Close()
}

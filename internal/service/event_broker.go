package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/observability"
)

const (
	eventBufferSize = 16
	seenEnvelopeCap = 1024
)

// EventPublisher delivers lifecycle events to the users they are addressed to.
type EventPublisher interface {
	Publish(ctx context.Context, event dto.Event)
}

// EventBroker fans events out to local subscribers and to the other API nodes.
type EventBroker interface {
	EventPublisher
	Subscribe(topic string) (<-chan dto.Event, func())
	Start(ctx context.Context)
}

type eventBroker struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	nodeID       string
	now          func() time.Time

	mu          sync.RWMutex
	subscribers map[string]map[chan dto.Event]struct{}

	seenMu sync.Mutex
	seen   map[string]struct{}
	order  []string
}

// eventEnvelope travels over both Redis and NATS, so receivers dedupe on ID.
type eventEnvelope struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Event  dto.Event `json:"event"`
}

// NewEventBroker constructs the broker. Redis and NATS are optional; without them delivery stays local.
func NewEventBroker(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) EventBroker {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &eventBroker{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "event_broker").Logger(),
		nodeID:       uuid.NewString(),
		now:          time.Now,
		subscribers:  make(map[string]map[chan dto.Event]struct{}),
		seen:         make(map[string]struct{}),
	}
}

func (b *eventBroker) Start(ctx context.Context) {
	if b.redis != nil && b.redisChannel != "" {
		pubsub := b.redis.Subscribe(ctx, b.redisChannel)
		if _, err := pubsub.Receive(ctx); err != nil {
			b.logger.Error().Err(err).Msg("failed to subscribe to redis events channel")
			_ = pubsub.Close()
		} else {
			go b.consumeRedis(ctx, pubsub)
		}
	}
	if b.nats != nil && b.natsSubject != "" {
		b.consumeNATS(ctx)
	}
}

func (b *eventBroker) Publish(ctx context.Context, event dto.Event) {
	if event.Topic == "" {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = b.now().UTC()
	}

	b.broadcast(event)

	if err := b.forward(ctx, event); err != nil {
		b.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to forward event to other nodes")
	}
}

func (b *eventBroker) Subscribe(topic string) (<-chan dto.Event, func()) {
	channel := make(chan dto.Event, eventBufferSize)

	b.mu.Lock()
	if _, exists := b.subscribers[topic]; !exists {
		b.subscribers[topic] = make(map[chan dto.Event]struct{})
	}
	b.subscribers[topic][channel] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if subscribers, ok := b.subscribers[topic]; ok {
				delete(subscribers, channel)
				close(channel)
				if len(subscribers) == 0 {
					delete(b.subscribers, topic)
				}
			}
		})
	}

	return channel, cancel
}

func (b *eventBroker) broadcast(event dto.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.Topic] {
		select {
		case ch <- event:
			observability.EventsPublished().WithLabelValues(event.Type).Inc()
		default:
			b.logger.Debug().Str("topic", event.Topic).Msg("dropping event for slow subscriber")
		}
	}
}

func (b *eventBroker) forward(ctx context.Context, event dto.Event) error {
	if (b.redis == nil || b.redisChannel == "") && (b.nats == nil || b.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(eventEnvelope{ID: uuid.NewString(), Source: b.nodeID, Event: event})
	if err != nil {
		return err
	}

	var errs []error
	if b.redis != nil && b.redisChannel != "" {
		if err := b.redis.Publish(ctx, b.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.nats != nil && b.natsSubject != "" {
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *eventBroker) consumeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			b.logger.Error().Err(err).Msg("event redis subscription closed")
			return
		}
		b.handleEnvelope([]byte(msg.Payload))
	}
}

func (b *eventBroker) consumeNATS(ctx context.Context) {
	sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
		b.handleEnvelope(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain events nats subscription")
		}
	}()
}

func (b *eventBroker) handleEnvelope(payload []byte) {
	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		b.logger.Warn().Err(err).Msg("invalid event payload")
		return
	}

	if envelope.Source == b.nodeID || envelope.Event.Topic == "" {
		return
	}
	if !b.markSeen(envelope.ID) {
		return
	}

	b.broadcast(envelope.Event)
}

func (b *eventBroker) markSeen(id string) bool {
	if id == "" {
		return true
	}

	b.seenMu.Lock()
	defer b.seenMu.Unlock()

	if _, ok := b.seen[id]; ok {
		return false
	}
	b.seen[id] = struct{}{}
	b.order = append(b.order, id)
	if len(b.order) > seenEnvelopeCap {
		delete(b.seen, b.order[0])
		b.order = b.order[1:]
	}
	return true
}

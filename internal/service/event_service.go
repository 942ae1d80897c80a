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

	"github.com/noah-isme/drivesense-api/internal/dto"
)

const eventBufferSize = 16

// EventPublisher delivers detection events to interested subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event dto.DetectionEvent) error
}

// EventService fans detection events out to live subscribers on this node and,
// when configured, to other nodes through redis pub/sub and NATS.
type EventService interface {
	EventPublisher
	Subscribe(userID uint) (<-chan dto.DetectionEvent, func())
	Start(ctx context.Context)
}

type eventService struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *eventBroker
	nodeID       string
}

type eventEnvelope struct {
	Source string             `json:"source"`
	Event  dto.DetectionEvent `json:"event"`
	SentAt time.Time          `json:"sent_at"`
}

type eventBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.DetectionEvent]struct{}
}

// NewEventService constructs the event service. Both transports are optional.
func NewEventService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) EventService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":events"
		subject = natsSubjectBase(channelBase) + ".events"
	}

	return &eventService{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "event_service").Logger(),
		broker: &eventBroker{
			subscribers: make(map[uint]map[chan dto.DetectionEvent]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func natsSubjectBase(channelBase string) string {
	return strings.ReplaceAll(channelBase, ":", ".")
}

func (s *eventService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		s.consumeNATS(ctx)
	}
}

// Publish delivers locally first; a transport error is returned after local
// subscribers have already been served.
func (s *eventService) Publish(ctx context.Context, event dto.DetectionEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	s.broker.broadcast(event.UserID, event)

	payload, err := json.Marshal(eventEnvelope{Source: s.nodeID, Event: event, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	var errs []error
	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *eventService) Subscribe(userID uint) (<-chan dto.DetectionEvent, func()) {
	channel := make(chan dto.DetectionEvent, eventBufferSize)
	s.broker.subscribe(userID, channel)

	var once sync.Once
	cleanup := func() {
		once.Do(func() { s.broker.unsubscribe(userID, channel) })
	}

	return channel, cleanup
}

func (s *eventService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("event redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload))
	}
}

func (s *eventService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain event nats subscription")
		}
	}()
}

func (s *eventService) handleEnvelope(payload []byte) {
	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid detection event payload")
		return
	}

	if envelope.Source == s.nodeID || envelope.Event.UserID == 0 {
		return
	}

	s.broker.broadcast(envelope.Event.UserID, envelope.Event)
}

func (b *eventBroker) subscribe(userID uint, ch chan dto.DetectionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[userID]; !exists {
		b.subscribers[userID] = make(map[chan dto.DetectionEvent]struct{})
	}
	b.subscribers[userID][ch] = struct{}{}
}

func (b *eventBroker) unsubscribe(userID uint, ch chan dto.DetectionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[userID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, userID)
		}
	}
}

// broadcast never blocks; slow subscribers drop events.
func (b *eventBroker) broadcast(userID uint, event dto.DetectionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[userID] {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *eventBroker) count(userID uint) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[userID])
}

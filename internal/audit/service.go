package audit

import (
	"context"
	"fmt"

	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Recorder interface {
	Record(ctx context.Context, e Event) (inserted bool, err error)
}

var known = map[string]bool{
	orders.EventOrderCreated:       true,
	orders.EventOrderStatusChanged: true,
	orders.EventOrderCanceled:      true,
}

// Service records order lifecycle events consumed from kafka.
type Service struct {
	Recorder    Recorder
	Redis       redis.Cmdable
	Logger      *zap.Logger
	ServiceName string
}

// HandleOrderEvent is installed as the consumer handler. It returns an error
// only when the event should be redelivered.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	// header lets us skip foreign events without decoding
	if t := kafkax.HeaderValue(m, kafkax.HeaderEventType); t != "" && !known[t] {
		return nil
	}

	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		s.Logger.Warn("dropping undecodable message", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if !known[env.EventType] {
		return nil
	}
	if _, err := uuid.Parse(env.EventID); err != nil {
		s.Logger.Warn("dropping event without id", zap.String("event_type", env.EventType), zap.Int64("offset", m.Offset))
		return nil
	}
	if _, err := uuid.Parse(env.CorrelationID); err != nil {
		s.Logger.Warn("dropping event without order id", zap.String("event_id", env.EventID))
		return nil
	}

	// dedup via redis; postgres stays idempotent when redis is down
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	claimed, err := redisx.Claim(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		s.Logger.Warn("dedup unavailable", zap.String("event_id", env.EventID), zap.Error(err))
		claimed = true
	}
	if !claimed {
		return nil
	}

	inserted, err := s.Recorder.Record(ctx, Event{
		EventID:    env.EventID,
		EventType:  env.EventType,
		OrderID:    env.CorrelationID,
		Producer:   env.Producer,
		Payload:    env.Payload,
		OccurredAt: env.OccurredAt,
	})
	if err != nil {
		if rerr := redisx.Release(ctx, s.Redis, dkey); rerr != nil {
			s.Logger.Warn("release dedup key", zap.String("event_id", env.EventID), zap.Error(rerr))
		}
		return fmt.Errorf("record event %s: %w", env.EventID, err)
	}
	s.Logger.Info("order event recorded",
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.String("order_id", env.CorrelationID),
		zap.Bool("inserted", inserted))
	return nil
}

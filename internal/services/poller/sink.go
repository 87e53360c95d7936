package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/TrackBot/internal/broker/messages"
	"github.com/BearBump/TrackBot/internal/models"
	"github.com/BearBump/TrackBot/internal/services/tracksync"
)

type PollReconciler interface {
	OnPollResult(ctx context.Context, st models.ShipmentStatus) (tracksync.Outcome, error)
}

// EngineSink reconciles poll results in-process.
type EngineSink struct {
	engine PollReconciler
}

func NewEngineSink(engine PollReconciler) *EngineSink {
	return &EngineSink{engine: engine}
}

func (s *EngineSink) Apply(ctx context.Context, st models.ShipmentStatus) error {
	_, err := s.engine.OnPollResult(ctx, st)
	return err
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// KafkaSink publishes poll results for the api to reconcile.
type KafkaSink struct {
	producer Producer
	topic    string
	provider string
	attempts int
	backoff  time.Duration
}

func NewKafkaSink(producer Producer, topic, provider string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, provider: provider, attempts: 10, backoff: 150 * time.Millisecond}
}

func (s *KafkaSink) Apply(ctx context.Context, st models.ShipmentStatus) error {
	msg := messages.TrackingUpdated{
		TrackingID: st.TrackingID,
		CheckedAt:  time.Now().UTC(),
		Provider:   s.provider,
		Status:     st,
	}
	b, err := msg.Encode()
	if err != nil {
		return err
	}

	// Kafka may not be ready right after the stack starts.
	var pubErr error
	for i := 0; i < s.attempts; i++ {
		if pubErr = s.producer.Publish(ctx, s.topic, msg.Key(), b); pubErr == nil {
			return nil
		}
		slog.Warn("kafka publish retry", "tracking_id", st.TrackingID, "attempt", i+1, "error", pubErr.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * s.backoff):
		}
	}
	return pubErr
}

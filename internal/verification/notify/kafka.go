package notify

import (
	"context"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"vouch/internal/verification/models"
	"vouch/pkg/platform/circuit"
)

// Producer is the slice of *kgo.Client the dispatcher needs.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaDispatcher publishes status changes keyed by owner so one user's
// events stay ordered within a partition. After repeated delivery failures
// the breaker opens and failed events are also written to the log.
type KafkaDispatcher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	breaker  *circuit.Breaker
	fallback *LogDispatcher
}

func NewKafkaDispatcher(producer Producer, topic string, logger *slog.Logger) *KafkaDispatcher {
	return &KafkaDispatcher{
		producer: producer,
		topic:    topic,
		logger:   logger,
		breaker:  circuit.New("status-notifications"),
		fallback: NewLogDispatcher(logger),
	}
}

// StatusChanged enqueues the event and returns immediately. Delivery errors
// are logged from the produce callback.
func (d *KafkaDispatcher) StatusChanged(ctx context.Context, req *models.Request) {
	event := NewStatusChangedEvent(req)
	payload, err := event.Marshal()
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to encode status change", "request_id", event.RequestID, "error", err)
		return
	}

	record := &kgo.Record{
		Topic: d.topic,
		Key:   []byte(event.OwnerID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event", Value: []byte(event.Event)},
		},
	}
	// The produce outlives the HTTP request that triggered it.
	detached := context.WithoutCancel(ctx)
	d.producer.Produce(detached, record, func(r *kgo.Record, err error) {
		if err != nil {
			d.logger.Error("failed to publish status change",
				"verification_request_id", event.RequestID,
				"status", event.Status,
				"error", err,
			)
			useFallback, change := d.breaker.RecordFailure()
			if change.Opened {
				d.logger.Warn("status notification circuit opened", "breaker", d.breaker.Name())
			}
			if useFallback {
				d.fallback.StatusChanged(detached, req)
			}
			return
		}
		if _, change := d.breaker.RecordSuccess(); change.Closed {
			d.logger.Info("status notification circuit closed", "breaker", d.breaker.Name())
		}
		d.logger.Debug("status change published",
			"verification_request_id", event.RequestID,
			"partition", r.Partition,
			"offset", r.Offset,
		)
	})
}

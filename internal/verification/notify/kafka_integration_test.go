//go:build integration

package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"vouch/internal/platform/config"
	"vouch/internal/platform/kafka"
	"vouch/internal/verification/models"
	"vouch/internal/verification/notify"
	id "vouch/pkg/domain"
	"vouch/pkg/testutil/containers"
)

func TestKafkaDispatcher_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	broker := containers.GetManager().GetRedpanda(t)
	cfg := config.KafkaConfig{
		Brokers:           []string{broker.Broker},
		Topic:             "verification.status." + uuid.NewString()[:8],
		Partitions:        1,
		ReplicationFactor: 1,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	producer, err := kafka.NewProducer(cfg)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, kafka.EnsureTopic(ctx, producer, cfg, logger))
	require.NoError(t, kafka.EnsureTopic(ctx, producer, cfg, logger), "second call is a no-op")

	req := &models.Request{
		ID:          id.NewRequestID(),
		OwnerID:     id.UserID(uuid.New()),
		Type:        models.TypePhoto,
		Status:      models.StatusPending,
		SubmittedAt: time.Now().UTC(),
	}
	notify.NewKafkaDispatcher(producer, cfg.Topic, logger).StatusChanged(ctx, req)
	require.NoError(t, producer.Flush(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollRecords(ctx, 1)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)

	var event notify.StatusChangedEvent
	require.NoError(t, json.Unmarshal(records[0].Value, &event))
	assert.Equal(t, req.ID.String(), event.RequestID)
	assert.Equal(t, "pending", event.Status)
	assert.Equal(t, req.OwnerID.String(), string(records[0].Key))
}

package notify

import (
	"context"
	"log/slog"

	"vouch/internal/verification/models"
)

// LogDispatcher writes status changes to the log. Used when no broker is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) StatusChanged(ctx context.Context, req *models.Request) {
	event := NewStatusChangedEvent(req)
	d.logger.InfoContext(ctx, "verification status changed",
		"event", event.Event,
		"verification_request_id", event.RequestID,
		"owner_id", event.OwnerID,
		"verification_type", event.Type,
		"status", event.Status,
	)
}

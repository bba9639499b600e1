package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"quackscribe/pkg/logger"
	"quackscribe/pkg/model"

	"go.uber.org/zap"
)

// UsageWriter is the storage side of the stats pipeline.
type UsageWriter interface {
	AddUsage(ctx context.Context, userID, seconds int64) error
}

// StatsConsumer applies usage events to the per-user counters. It runs in
// its own process, decoupled from the webhook service by the queue.
type StatsConsumer struct {
	db UsageWriter
}

func NewStatsConsumer(db UsageWriter) *StatsConsumer {
	return &StatsConsumer{db: db}
}

// HandleEvent is the queue consumer callback. A failed write returns the
// error so the delivery is requeued.
func (c *StatsConsumer) HandleEvent(body []byte) error {
	var event model.UsageEvent
	if err := json.Unmarshal(body, &event); err != nil {
		// A malformed event will never parse on redelivery; drop it.
		logger.Error("Dropping malformed usage event", zap.Error(err))
		return nil
	}

	ctx := context.Background()
	if err := c.db.AddUsage(ctx, event.UserID, event.TranscribedSeconds); err != nil {
		return fmt.Errorf("failed to record usage for user %d: %w", event.UserID, err)
	}

	logger.Info("Usage recorded",
		zap.String("event_id", event.EventID),
		zap.Int64("user_id", event.UserID),
		zap.Int64("seconds", event.TranscribedSeconds))

	return nil
}

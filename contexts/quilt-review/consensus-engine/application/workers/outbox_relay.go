package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "quiltqc/contexts/quilt-review/consensus-engine/application"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"
)

// OutboxRelay publishes persisted block events to the event bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce publishes a bounded batch of pending outbox rows and marks each row
// published only after the publish succeeds. It stops on the first failure so
// the next cycle picks up the remaining rows in order.
func (r OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("consensus outbox list failed",
			"event", "consensus_outbox_list_failed",
			"module", "quilt-review/consensus-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}
	if len(pending) == 0 {
		logger.Debug("consensus outbox relay found no pending rows",
			"event", "consensus_outbox_relay_noop",
			"module", "quilt-review/consensus-engine",
			"layer", "worker",
			"batch_size", limit,
		)
		return 0, nil
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	published := 0
	for _, row := range pending {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("consensus outbox decode failed",
				"event", "consensus_outbox_decode_failed",
				"module", "quilt-review/consensus-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return published, err
		}
		topic := event.EventType
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.Error("consensus outbox publish failed",
				"event", "consensus_outbox_publish_failed",
				"module", "quilt-review/consensus-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_type", event.EventType,
				"error", err.Error(),
			)
			return published, err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			logger.Error("consensus outbox mark published failed",
				"event", "consensus_outbox_mark_published_failed",
				"module", "quilt-review/consensus-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return published, err
		}
		published++
	}

	logger.Info("consensus outbox relay cycle completed",
		"event", "consensus_outbox_relay_completed",
		"module", "quilt-review/consensus-engine",
		"layer", "worker",
		"published_count", published,
	)
	return published, nil
}

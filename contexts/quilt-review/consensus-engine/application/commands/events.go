package commands

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/ports"
	contractsv1 "quiltqc/contracts/gen/events/v1"

	"github.com/google/uuid"
)

const (
	EventConsensusReached = contractsv1.EventTypeBlockConsensusReached
	EventRecropCompleted  = contractsv1.EventTypeBlockRecropCompleted
)

// newBlockEnvelope builds block-scoped events. Events are partitioned by block
// so consumers see one block's history in order.
func newBlockEnvelope(
	eventID string,
	eventType string,
	blockID int64,
	occurredAt time.Time,
	data any,
) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "consensus-engine",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "block_id",
		PartitionKey:     strconv.FormatInt(blockID, 10),
		Data:             payload,
	}, nil
}

func newEventID(ctx context.Context, ids ports.IDGenerator) (string, error) {
	if ids == nil {
		return uuid.NewString(), nil
	}
	return ids.NewID(ctx)
}

func resolveNow(clock ports.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now().UTC()
}

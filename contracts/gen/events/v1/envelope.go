package v1

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the canonical, versioned event envelope for cross-runtime use.
// This package is generated-contract-only and must stay backward compatible.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

// DecodeData unmarshals the envelope payload into dst after checking the
// event type.
func (e Envelope) DecodeData(eventType string, dst any) error {
	if e.EventType != eventType {
		return fmt.Errorf("event %s: expected type %s, got %s", e.EventID, eventType, e.EventType)
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("event %s: decode %s payload: %w", e.EventID, eventType, err)
	}
	return nil
}

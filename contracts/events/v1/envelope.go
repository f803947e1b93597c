package v1

import (
	"encoding/json"
	"time"
)

// Envelope is the canonical, versioned event envelope for ledger events.
// Consumers depend on this shape; keep it backward compatible.
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

// Ledger event types.
const (
	EventProposalCreated = "proposal.created"
	EventProposalVoted   = "proposal.voted"
	EventProposalClosed  = "proposal.closed"
)

package ports

import (
	"context"
	"time"

	"govledger/contexts/governance/proposal-ledger/domain/entities"
	contractsv1 "govledger/contracts/events/v1"
)

// ProposalFilter narrows proposal listings. Zero values mean "any".
// OpenAt keeps proposals whose voting window is still running at that
// instant; ExpiredAt keeps those whose window has ended by then.
type ProposalFilter struct {
	Author    *entities.Identity
	Subject   *entities.Identity
	Closed    *bool
	OpenAt    *time.Time
	ExpiredAt *time.Time
	Limit     int
}

type ProposalReader interface {
	GetProposal(ctx context.Context, handle entities.Identity) (entities.Proposal, error)
	ListProposals(ctx context.Context, filter ProposalFilter) ([]entities.Proposal, error)
}

// ProposalWrite is one mutation of a single record.
//
// Apply runs against a private copy of the record while the record's
// exclusive lock is held. The copy, the event Apply returns and the
// Idempotency record are committed together or not at all. When Idempotency
// names a key already stored for the same request hash, Apply is skipped and
// the current record comes back with Replayed set; a stored key with another
// hash fails with ErrIdempotencyConflict. ReceivedAt decides key expiry.
type ProposalWrite struct {
	Idempotency *IdempotencyRecord
	ReceivedAt  time.Time
	Apply       func(proposal *entities.Proposal) (*EventEnvelope, error)
}

// ProposalWriteResult is the committed record. Revision starts at 1 on
// create and grows by one per committed mutation of that record.
type ProposalWriteResult struct {
	Proposal entities.Proposal
	Revision uint64
	Replayed bool
}

// ProposalRepository owns the fixed-size record slots, the outbox and the
// idempotency keys, so every mutation commits with its side records.
// Implementations never lock more than one record.
type ProposalRepository interface {
	ProposalReader
	CreateProposal(ctx context.Context, proposal entities.Proposal, write ProposalWrite) (ProposalWriteResult, error)
	UpdateProposal(ctx context.Context, handle entities.Identity, write ProposalWrite) (ProposalWriteResult, error)
}

// ProposalCache is an optional read-side cache in front of ProposalReader.
//
// PutCachedProposal stores a committed revision and never replaces a newer
// one. FillCachedProposal stores a repository read only when no entry exists,
// so a slow reader cannot overwrite what a writer stored after it.
type ProposalCache interface {
	GetCachedProposal(ctx context.Context, handle entities.Identity) (entities.Proposal, bool, error)
	PutCachedProposal(ctx context.Context, proposal entities.Proposal, revision uint64, ttl time.Duration) error
	FillCachedProposal(ctx context.Context, proposal entities.Proposal, ttl time.Duration) error
	InvalidateProposal(ctx context.Context, handle entities.Identity) error
}

type IdempotencyRecord struct {
	Key         string
	RequestHash string
	ProposalID  string
	ExpiresAt   time.Time
}

// IdempotencyStore looks up keys stored by ProposalRepository writes.
// Expired keys read as absent.
type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// EventEnvelope reuses the canonical event contract.
type EventEnvelope = contractsv1.Envelope

// OutboxMessage is a row ready to relay from the ledger outbox. Sequence is
// assigned at commit and orders one record's events as they were committed.
type OutboxMessage struct {
	OutboxID     string
	Sequence     int64
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"govledger/contexts/governance/proposal-ledger/domain/entities"
	domainerrors "govledger/contexts/governance/proposal-ledger/domain/errors"
	"govledger/contexts/governance/proposal-ledger/ports"

	"github.com/google/uuid"
)

// slot is one proposal's reserved storage. The record is kept in its encoded
// fixed-size form so every write goes through the same layout codec as the
// SQL adapter.
type slot struct {
	mu       sync.Mutex
	data     [entities.RecordSize]byte
	revision uint64
}

// Store keeps published outbox rows only until MarkOutboxPublished.
type Store struct {
	mu sync.RWMutex

	slots       map[entities.Identity]*slot
	idempotency map[string]ports.IdempotencyRecord
	outbox      map[string]ports.OutboxMessage
	outboxSeq   int64
}

func NewStore(seed []entities.Proposal) *Store {
	store := &Store{
		slots:       make(map[entities.Identity]*slot, len(seed)),
		idempotency: make(map[string]ports.IdempotencyRecord),
		outbox:      make(map[string]ports.OutboxMessage),
	}
	for _, proposal := range seed {
		_, _ = store.CreateProposal(context.Background(), proposal, ports.ProposalWrite{})
	}
	return store
}

func (s *Store) CreateProposal(
	_ context.Context,
	proposal entities.Proposal,
	write ports.ProposalWrite,
) (ports.ProposalWriteResult, error) {
	s.mu.Lock()
	stored, found, err := s.storedKeyLocked(write)
	if err != nil {
		s.mu.Unlock()
		return ports.ProposalWriteResult{}, err
	}
	if found {
		s.mu.Unlock()
		return s.replayCreate(stored)
	}
	defer s.mu.Unlock()

	if _, exists := s.slots[proposal.Handle]; exists {
		return ports.ProposalWriteResult{}, domainerrors.ErrProposalExists
	}
	event, err := applyWrite(write, &proposal)
	if err != nil {
		return ports.ProposalWriteResult{}, err
	}
	encoded, err := proposal.MarshalBinary()
	if err != nil {
		return ports.ProposalWriteResult{}, err
	}
	if err := s.commitSideRecordsLocked(write, event); err != nil {
		return ports.ProposalWriteResult{}, err
	}
	created := &slot{revision: 1}
	copy(created.data[:], encoded)
	s.slots[proposal.Handle] = created
	return ports.ProposalWriteResult{Proposal: proposal, Revision: created.revision}, nil
}

func (s *Store) GetProposal(_ context.Context, handle entities.Identity) (entities.Proposal, error) {
	target, ok := s.lookupSlot(handle)
	if !ok {
		return entities.Proposal{}, domainerrors.ErrProposalNotFound
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	return decodeSlot(target)
}

// UpdateProposal holds the slot lock across decode, apply, the side records
// and encode, so concurrent ballots on one proposal serialize while other
// proposals proceed. Lock order is always slot, then store.
func (s *Store) UpdateProposal(
	_ context.Context,
	handle entities.Identity,
	write ports.ProposalWrite,
) (ports.ProposalWriteResult, error) {
	target, ok := s.lookupSlot(handle)
	if !ok {
		return ports.ProposalWriteResult{}, domainerrors.ErrProposalNotFound
	}
	target.mu.Lock()
	defer target.mu.Unlock()

	proposal, err := decodeSlot(target)
	if err != nil {
		return ports.ProposalWriteResult{}, err
	}
	s.mu.RLock()
	_, found, err := s.storedKeyLocked(write)
	s.mu.RUnlock()
	if err != nil {
		return ports.ProposalWriteResult{}, err
	}
	if found {
		return ports.ProposalWriteResult{Proposal: proposal, Revision: target.revision, Replayed: true}, nil
	}

	event, err := applyWrite(write, &proposal)
	if err != nil {
		return ports.ProposalWriteResult{}, err
	}
	encoded, err := proposal.MarshalBinary()
	if err != nil {
		return ports.ProposalWriteResult{}, err
	}
	s.mu.Lock()
	err = s.commitSideRecordsLocked(write, event)
	s.mu.Unlock()
	if err != nil {
		return ports.ProposalWriteResult{}, err
	}
	copy(target.data[:], encoded)
	target.revision++
	return ports.ProposalWriteResult{Proposal: proposal, Revision: target.revision}, nil
}

func (s *Store) ListProposals(_ context.Context, filter ports.ProposalFilter) ([]entities.Proposal, error) {
	s.mu.RLock()
	targets := make([]*slot, 0, len(s.slots))
	for _, target := range s.slots {
		targets = append(targets, target)
	}
	s.mu.RUnlock()

	items := make([]entities.Proposal, 0, len(targets))
	for _, target := range targets {
		target.mu.Lock()
		proposal, err := decodeSlot(target)
		target.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if !matchesFilter(proposal, filter) {
			continue
		}
		items = append(items, proposal)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return bytes.Compare(items[i].Handle[:], items[j].Handle[:]) < 0
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = strings.TrimSpace(key)
	record, ok := s.idempotency[key]
	if !ok {
		return ports.IdempotencyRecord{}, false, nil
	}
	if keyExpired(record, now) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		items = append(items, row)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Sequence < items[j].Sequence
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// MarkOutboxPublished drops the row; nothing reads published rows back.
func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	outboxID = strings.TrimSpace(outboxID)
	if _, ok := s.outbox[outboxID]; !ok {
		return domainerrors.ErrConflict
	}
	delete(s.outbox, outboxID)
	return nil
}

// storedKeyLocked reports whether write's idempotency key was already
// committed for the same request. Callers hold s.mu.
func (s *Store) storedKeyLocked(write ports.ProposalWrite) (ports.IdempotencyRecord, bool, error) {
	if write.Idempotency == nil {
		return ports.IdempotencyRecord{}, false, nil
	}
	record, ok := s.idempotency[strings.TrimSpace(write.Idempotency.Key)]
	if !ok || keyExpired(record, receivedAt(write)) {
		return ports.IdempotencyRecord{}, false, nil
	}
	if record.RequestHash != write.Idempotency.RequestHash {
		return ports.IdempotencyRecord{}, false, domainerrors.ErrIdempotencyConflict
	}
	return record, true, nil
}

// commitSideRecordsLocked validates both side records before writing either,
// so a failure leaves the outbox and the key table untouched. Callers hold
// s.mu for writing.
func (s *Store) commitSideRecordsLocked(write ports.ProposalWrite, event *ports.EventEnvelope) error {
	var key ports.IdempotencyRecord
	if write.Idempotency != nil {
		key = *write.Idempotency
		key.Key = strings.TrimSpace(key.Key)
		if existing, ok := s.idempotency[key.Key]; ok && !keyExpired(existing, receivedAt(write)) {
			return domainerrors.ErrIdempotencyConflict
		}
	}

	var row ports.OutboxMessage
	if event != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		row = ports.OutboxMessage{
			OutboxID:     strings.TrimSpace(event.EventID),
			EventType:    strings.TrimSpace(event.EventType),
			PartitionKey: strings.TrimSpace(event.PartitionKey),
			Payload:      payload,
			CreatedAt:    event.OccurredAt.UTC(),
		}
		if row.OutboxID == "" {
			row.OutboxID = uuid.NewString()
		}
		if _, exists := s.outbox[row.OutboxID]; exists {
			return domainerrors.ErrConflict
		}
	}

	if write.Idempotency != nil {
		s.idempotency[key.Key] = key
	}
	if event != nil {
		s.outboxSeq++
		row.Sequence = s.outboxSeq
		s.outbox[row.OutboxID] = row
	}
	return nil
}

func (s *Store) replayCreate(stored ports.IdempotencyRecord) (ports.ProposalWriteResult, error) {
	handle, err := entities.ParseIdentity(stored.ProposalID)
	if err != nil {
		return ports.ProposalWriteResult{}, domainerrors.ErrProposalNotFound
	}
	target, ok := s.lookupSlot(handle)
	if !ok {
		return ports.ProposalWriteResult{}, domainerrors.ErrProposalNotFound
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	proposal, err := decodeSlot(target)
	if err != nil {
		return ports.ProposalWriteResult{}, err
	}
	return ports.ProposalWriteResult{Proposal: proposal, Revision: target.revision, Replayed: true}, nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) lookupSlot(handle entities.Identity) (*slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	target, ok := s.slots[handle]
	return target, ok
}

func decodeSlot(target *slot) (entities.Proposal, error) {
	var proposal entities.Proposal
	if err := proposal.UnmarshalBinary(target.data[:]); err != nil {
		return entities.Proposal{}, err
	}
	return proposal, nil
}

func applyWrite(write ports.ProposalWrite, proposal *entities.Proposal) (*ports.EventEnvelope, error) {
	if write.Apply == nil {
		return nil, nil
	}
	return write.Apply(proposal)
}

func receivedAt(write ports.ProposalWrite) time.Time {
	if write.ReceivedAt.IsZero() {
		return time.Now().UTC()
	}
	return write.ReceivedAt
}

func keyExpired(record ports.IdempotencyRecord, now time.Time) bool {
	return !record.ExpiresAt.IsZero() && now.UTC().After(record.ExpiresAt.UTC())
}

func matchesFilter(proposal entities.Proposal, filter ports.ProposalFilter) bool {
	if filter.Author != nil && proposal.Author != *filter.Author {
		return false
	}
	if filter.Subject != nil && proposal.Subject != *filter.Subject {
		return false
	}
	if filter.Closed != nil && proposal.Closed != *filter.Closed {
		return false
	}
	if filter.OpenAt != nil && proposal.IsExpired(*filter.OpenAt) {
		return false
	}
	if filter.ExpiredAt != nil && !proposal.IsExpired(*filter.ExpiredAt) {
		return false
	}
	return true
}

var (
	_ ports.ProposalRepository = (*Store)(nil)
	_ ports.IdempotencyStore   = (*Store)(nil)
	_ ports.OutboxRepository   = (*Store)(nil)
	_ ports.Clock              = (*Store)(nil)
	_ ports.IDGenerator        = (*Store)(nil)
)

package memory

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"govledger/contexts/governance/proposal-ledger/domain/entities"
	domainerrors "govledger/contexts/governance/proposal-ledger/domain/errors"
	"govledger/contexts/governance/proposal-ledger/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func identity(n uint32) entities.Identity {
	var id entities.Identity
	id[0] = 0x5A
	binary.BigEndian.PutUint32(id[28:], n)
	return id
}

func newProposal(t *testing.T, author uint32, title string) entities.Proposal {
	t.Helper()
	proposal, err := entities.NewProposal(entities.NewProposalParams{
		Author:         identity(author),
		Title:          title,
		Description:    "memory store fixture",
		Subject:        identity(7000),
		ExpirationTime: storeTime.Add(48 * time.Hour),
	}, storeTime)
	require.NoError(t, err)
	return proposal
}

func mutate(fn func(p *entities.Proposal) error) ports.ProposalWrite {
	return ports.ProposalWrite{
		ReceivedAt: storeTime,
		Apply: func(p *entities.Proposal) (*ports.EventEnvelope, error) {
			return nil, fn(p)
		},
	}
}

func event(id string) *ports.EventEnvelope {
	return &ports.EventEnvelope{
		EventID:      id,
		EventType:    "proposal.voted",
		OccurredAt:   storeTime,
		PartitionKey: identity(1).String(),
		Data:         []byte(`{}`),
	}
}

func emit(id string, key *ports.IdempotencyRecord) ports.ProposalWrite {
	return ports.ProposalWrite{
		Idempotency: key,
		ReceivedAt:  storeTime,
		Apply: func(p *entities.Proposal) (*ports.EventEnvelope, error) {
			p.Description = "touched by " + id
			return event(id), nil
		},
	}
}

func TestCreateProposalRejectsDuplicateHandle(t *testing.T) {
	store := NewStore(nil)
	proposal := newProposal(t, 1, "duplicate")

	result, err := store.CreateProposal(context.Background(), proposal, ports.ProposalWrite{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Revision)
	_, err = store.CreateProposal(context.Background(), proposal, ports.ProposalWrite{})
	assert.ErrorIs(t, err, domainerrors.ErrProposalExists)

	loaded, err := store.GetProposal(context.Background(), proposal.Handle)
	require.NoError(t, err)
	assert.Equal(t, proposal, loaded)
}

func TestUpdateProposalLeavesSlotUntouchedOnError(t *testing.T) {
	store := NewStore([]entities.Proposal{newProposal(t, 1, "rollback")})
	handle := entities.DeriveHandle(identity(1), "rollback")

	_, err := store.UpdateProposal(context.Background(), handle, mutate(func(p *entities.Proposal) error {
		p.YesVotes = 99
		return errors.New("mutation rejected")
	}))
	require.Error(t, err)

	loaded, err := store.GetProposal(context.Background(), handle)
	require.NoError(t, err)
	assert.Zero(t, loaded.YesVotes)
}

func TestUpdateProposalRejectsInvariantBreakingWrites(t *testing.T) {
	store := NewStore([]entities.Proposal{newProposal(t, 1, "invariants")})
	handle := entities.DeriveHandle(identity(1), "invariants")

	_, err := store.UpdateProposal(context.Background(), handle, mutate(func(p *entities.Proposal) error {
		p.NoVotes = 3
		return nil
	}))
	assert.ErrorIs(t, err, domainerrors.ErrCorruptRecord)
}

func TestUpdateProposalUnknownHandle(t *testing.T) {
	store := NewStore(nil)
	_, err := store.UpdateProposal(context.Background(), identity(404), mutate(func(*entities.Proposal) error {
		return nil
	}))
	assert.ErrorIs(t, err, domainerrors.ErrProposalNotFound)
}

func TestConcurrentBallotsSerializePerSlot(t *testing.T) {
	store := NewStore([]entities.Proposal{newProposal(t, 1, "concurrent")})
	handle := entities.DeriveHandle(identity(1), "concurrent")

	var wg sync.WaitGroup
	for i := uint32(0); i < 300; i++ {
		wg.Add(1)
		go func(voter uint32) {
			defer wg.Done()
			direction := entities.VoteYes
			if voter%3 == 0 {
				direction = entities.VoteNo
			}
			_, _ = store.UpdateProposal(context.Background(), handle, mutate(func(p *entities.Proposal) error {
				_, err := p.CastBallot(identity(100+voter), direction, storeTime)
				return err
			}))
		}(i)
	}
	wg.Wait()

	loaded, err := store.GetProposal(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, uint32(entities.MaxVoters), loaded.UniqueVoters)
	assert.Equal(t, uint64(entities.MaxVoters), loaded.TotalVotes())
	assert.NoError(t, loaded.Validate())
}

func TestListProposalsFiltersAndLimits(t *testing.T) {
	first := newProposal(t, 1, "first")
	second := newProposal(t, 1, "second")
	other := newProposal(t, 2, "other")
	store := NewStore([]entities.Proposal{first, second, other})

	_, err := store.UpdateProposal(context.Background(), second.Handle, mutate(func(p *entities.Proposal) error {
		_, closeErr := p.Close(identity(1))
		return closeErr
	}))
	require.NoError(t, err)

	author := identity(1)
	items, err := store.ListProposals(context.Background(), ports.ProposalFilter{Author: &author})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	closed := true
	items, err = store.ListProposals(context.Background(), ports.ProposalFilter{Closed: &closed})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, second.Handle, items[0].Handle)

	items, err = store.ListProposals(context.Background(), ports.ProposalFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestListProposalsByExpiry(t *testing.T) {
	soon, err := entities.NewProposal(entities.NewProposalParams{
		Author:         identity(3),
		Title:          "soon",
		ExpirationTime: storeTime.Add(time.Hour),
	}, storeTime)
	require.NoError(t, err)
	later := newProposal(t, 3, "later")
	store := NewStore([]entities.Proposal{soon, later})

	at := storeTime.Add(time.Hour)
	items, err := store.ListProposals(context.Background(), ports.ProposalFilter{OpenAt: &at})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, later.Handle, items[0].Handle)

	items, err = store.ListProposals(context.Background(), ports.ProposalFilter{ExpiredAt: &at})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, soon.Handle, items[0].Handle)
}

func TestIdempotencyRecordsExpire(t *testing.T) {
	store := NewStore([]entities.Proposal{newProposal(t, 1, "keys")})
	handle := entities.DeriveHandle(identity(1), "keys")
	key := &ports.IdempotencyRecord{
		Key:         "key-1",
		RequestHash: "hash-a",
		ProposalID:  handle.String(),
		ExpiresAt:   storeTime.Add(time.Hour),
	}
	_, err := store.UpdateProposal(context.Background(), handle, emit("evt-1", key))
	require.NoError(t, err)

	_, found, err := store.Get(context.Background(), "key-1", storeTime)
	require.NoError(t, err)
	assert.True(t, found)

	other := *key
	other.RequestHash = "hash-b"
	_, err = store.UpdateProposal(context.Background(), handle, emit("evt-2", &other))
	assert.ErrorIs(t, err, domainerrors.ErrIdempotencyConflict)

	_, found, err = store.Get(context.Background(), "key-1", storeTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpdateProposalReplaysStoredKey(t *testing.T) {
	store := NewStore([]entities.Proposal{newProposal(t, 1, "replay")})
	handle := entities.DeriveHandle(identity(1), "replay")
	key := &ports.IdempotencyRecord{Key: "key-r", RequestHash: "hash", ProposalID: handle.String()}

	first, err := store.UpdateProposal(context.Background(), handle, emit("evt-1", key))
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.Equal(t, uint64(2), first.Revision)

	applied := false
	second, err := store.UpdateProposal(context.Background(), handle, ports.ProposalWrite{
		Idempotency: key,
		ReceivedAt:  storeTime,
		Apply: func(*entities.Proposal) (*ports.EventEnvelope, error) {
			applied = true
			return event("evt-2"), nil
		},
	})
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.False(t, applied)
	assert.Equal(t, first.Revision, second.Revision)

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDuplicateEventRollsBackWrite(t *testing.T) {
	store := NewStore([]entities.Proposal{newProposal(t, 1, "atomic")})
	handle := entities.DeriveHandle(identity(1), "atomic")

	_, err := store.UpdateProposal(context.Background(), handle, emit("evt-1", nil))
	require.NoError(t, err)

	key := &ports.IdempotencyRecord{Key: "key-a", RequestHash: "hash", ProposalID: handle.String()}
	_, err = store.UpdateProposal(context.Background(), handle, ports.ProposalWrite{
		Idempotency: key,
		ReceivedAt:  storeTime,
		Apply: func(p *entities.Proposal) (*ports.EventEnvelope, error) {
			_, castErr := p.CastBallot(identity(50), entities.VoteYes, storeTime)
			return event("evt-1"), castErr
		},
	})
	require.ErrorIs(t, err, domainerrors.ErrConflict)

	loaded, err := store.GetProposal(context.Background(), handle)
	require.NoError(t, err)
	assert.Zero(t, loaded.UniqueVoters)
	_, found, err := store.Get(context.Background(), "key-a", storeTime)
	require.NoError(t, err)
	assert.False(t, found)

	result, err := store.UpdateProposal(context.Background(), handle, emit("evt-2", key))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), result.Revision)
}

func TestOutboxFollowsCommitSequence(t *testing.T) {
	store := NewStore([]entities.Proposal{newProposal(t, 1, "sequence")})
	handle := entities.DeriveHandle(identity(1), "sequence")

	ids := []string{"evt-c", "evt-a", "evt-b"}
	for _, id := range ids {
		_, err := store.UpdateProposal(context.Background(), handle, emit(id, nil))
		require.NoError(t, err)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, row := range pending {
		assert.Equal(t, ids[i], row.OutboxID)
		assert.Equal(t, int64(i+1), row.Sequence)
	}

	pending, err = store.ListPendingOutbox(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestMarkOutboxPublishedDropsRow(t *testing.T) {
	store := NewStore([]entities.Proposal{newProposal(t, 1, "published")})
	handle := entities.DeriveHandle(identity(1), "published")
	_, err := store.UpdateProposal(context.Background(), handle, emit("evt-1", nil))
	require.NoError(t, err)
	_, err = store.UpdateProposal(context.Background(), handle, emit("evt-2", nil))
	require.NoError(t, err)

	require.NoError(t, store.MarkOutboxPublished(context.Background(), "evt-1", storeTime))
	assert.Len(t, store.outbox, 1)

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "evt-2", pending[0].OutboxID)

	err = store.MarkOutboxPublished(context.Background(), "evt-1", storeTime)
	assert.ErrorIs(t, err, domainerrors.ErrConflict)

	require.NoError(t, store.MarkOutboxPublished(context.Background(), "evt-2", storeTime))
	assert.Empty(t, store.outbox)
}

package entities

import (
	"encoding/binary"
	"math/rand"
	"strings"
	"testing"
	"time"

	domainerrors "govledger/contexts/governance/proposal-ledger/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testIdentity(n uint32) Identity {
	var id Identity
	id[0] = 0xA5
	binary.BigEndian.PutUint32(id[28:], n)
	return id
}

func openProposal(t *testing.T) Proposal {
	t.Helper()
	proposal, err := NewProposal(NewProposalParams{
		Author:         testIdentity(1),
		Title:          "List token on main board",
		Description:    "Should the DAO list this token?",
		Subject:        testIdentity(9000),
		ExpirationTime: baseTime.Add(24 * time.Hour),
	}, baseTime)
	require.NoError(t, err)
	return proposal
}

func TestNewProposalInitializesOpenRecord(t *testing.T) {
	proposal := openProposal(t)

	assert.Equal(t, testIdentity(1), proposal.Author)
	assert.Equal(t, DeriveHandle(testIdentity(1), "List token on main board"), proposal.Handle)
	assert.Equal(t, baseTime, proposal.CreatedAt)
	assert.Equal(t, baseTime.Add(24*time.Hour), proposal.ExpirationTime)
	assert.Zero(t, proposal.YesVotes)
	assert.Zero(t, proposal.NoVotes)
	assert.Zero(t, proposal.UniqueVoters)
	assert.Empty(t, proposal.Voters())
	assert.False(t, proposal.Closed)
	assert.Equal(t, OutcomeNone, proposal.Outcome)
	assert.Equal(t, MaxVoters, proposal.RemainingCapacity())
	assert.NoError(t, proposal.Validate())
}

func TestNewProposalBoundsText(t *testing.T) {
	params := NewProposalParams{
		Author:         testIdentity(1),
		Title:          strings.Repeat("t", MaxTitleLen),
		Description:    strings.Repeat("d", MaxDescriptionLen),
		ExpirationTime: baseTime.Add(time.Hour),
	}
	_, err := NewProposal(params, baseTime)
	require.NoError(t, err)

	params.Title = strings.Repeat("t", MaxTitleLen+1)
	_, err = NewProposal(params, baseTime)
	assert.ErrorIs(t, err, domainerrors.ErrTitleTooLong)

	params.Title = "ok"
	params.Description = strings.Repeat("d", MaxDescriptionLen+1)
	_, err = NewProposal(params, baseTime)
	assert.ErrorIs(t, err, domainerrors.ErrDescriptionTooLong)
}

func TestNewProposalChecksTitleBeforeDescription(t *testing.T) {
	_, err := NewProposal(NewProposalParams{
		Title:       strings.Repeat("t", MaxTitleLen+1),
		Description: strings.Repeat("d", MaxDescriptionLen+1),
	}, baseTime)
	assert.ErrorIs(t, err, domainerrors.ErrTitleTooLong)
}

func TestNewProposalDoesNotValidateExpirationOrdering(t *testing.T) {
	proposal, err := NewProposal(NewProposalParams{
		Author:         testIdentity(1),
		Title:          "already over",
		ExpirationTime: baseTime.Add(-time.Hour),
	}, baseTime)
	require.NoError(t, err)

	_, err = proposal.CastBallot(testIdentity(2), VoteYes, baseTime)
	assert.ErrorIs(t, err, domainerrors.ErrProposalExpired)
}

func TestCastBallotFirstVote(t *testing.T) {
	proposal := openProposal(t)

	change, err := proposal.CastBallot(testIdentity(2), VoteYes, baseTime)
	require.NoError(t, err)

	assert.Equal(t, BallotNew, change.Kind)
	assert.Equal(t, VoteYes, change.Direction)
	assert.Equal(t, uint32(1), proposal.YesVotes)
	assert.Equal(t, uint32(0), proposal.NoVotes)
	assert.Equal(t, uint32(1), proposal.UniqueVoters)
	record, found := proposal.FindVoter(testIdentity(2))
	require.True(t, found)
	assert.True(t, record.VotedYes)
	assert.False(t, record.VotedNo)
}

func TestCastBallotRejectsSameSideTwice(t *testing.T) {
	proposal := openProposal(t)
	_, err := proposal.CastBallot(testIdentity(2), VoteYes, baseTime)
	require.NoError(t, err)
	_, err = proposal.CastBallot(testIdentity(3), VoteNo, baseTime)
	require.NoError(t, err)
	before := proposal

	_, err = proposal.CastBallot(testIdentity(2), VoteYes, baseTime)
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyVotedYes)
	_, err = proposal.CastBallot(testIdentity(3), VoteNo, baseTime)
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyVotedNo)

	assert.Equal(t, before, proposal)
}

func TestCastBallotSwitchesSides(t *testing.T) {
	proposal := openProposal(t)
	voter := testIdentity(2)

	_, err := proposal.CastBallot(voter, VoteYes, baseTime)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), proposal.YesVotes)
	assert.Equal(t, uint32(0), proposal.NoVotes)

	change, err := proposal.CastBallot(voter, VoteNo, baseTime)
	require.NoError(t, err)
	assert.Equal(t, BallotSwitched, change.Kind)
	assert.Equal(t, VoteYes, change.Previous)
	assert.Equal(t, uint32(0), proposal.YesVotes)
	assert.Equal(t, uint32(1), proposal.NoVotes)
	assert.Equal(t, uint32(1), proposal.UniqueVoters)
	assert.Len(t, proposal.Voters(), 1)

	_, err = proposal.CastBallot(voter, VoteYes, baseTime)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), proposal.YesVotes)
	assert.Equal(t, uint32(0), proposal.NoVotes)
	assert.NoError(t, proposal.Validate())
}

func TestCastBallotCapacity(t *testing.T) {
	proposal := openProposal(t)
	for i := uint32(0); i < MaxVoters; i++ {
		direction := VoteYes
		if i%3 == 0 {
			direction = VoteNo
		}
		_, err := proposal.CastBallot(testIdentity(100+i), direction, baseTime)
		require.NoError(t, err, "voter %d", i+1)
	}
	assert.Equal(t, uint32(MaxVoters), proposal.UniqueVoters)
	assert.Zero(t, proposal.RemainingCapacity())

	before := proposal
	_, err := proposal.CastBallot(testIdentity(5000), VoteYes, baseTime)
	assert.ErrorIs(t, err, domainerrors.ErrMaxVotersReached)
	assert.Equal(t, before, proposal)

	// Registered voters can still switch at capacity.
	_, err = proposal.CastBallot(testIdentity(100), VoteYes, baseTime)
	assert.NoError(t, err)
}

func TestCastBallotPreconditionOrder(t *testing.T) {
	proposal := openProposal(t)
	_, err := proposal.CastBallot(testIdentity(2), VoteYes, baseTime)
	require.NoError(t, err)
	_, err = proposal.Close(testIdentity(1))
	require.NoError(t, err)

	// Closed wins over expired when both hold.
	_, err = proposal.CastBallot(testIdentity(2), VoteYes, proposal.ExpirationTime.Add(time.Hour))
	assert.ErrorIs(t, err, domainerrors.ErrProposalClosed)
}

func TestCastBallotExpirationBoundary(t *testing.T) {
	proposal := openProposal(t)

	_, err := proposal.CastBallot(testIdentity(2), VoteYes, proposal.ExpirationTime.Add(-time.Second))
	assert.NoError(t, err)

	_, err = proposal.CastBallot(testIdentity(3), VoteYes, proposal.ExpirationTime)
	assert.ErrorIs(t, err, domainerrors.ErrProposalExpired)
	assert.Equal(t, uint32(1), proposal.UniqueVoters)
}

func TestCastBallotRejectsUnknownDirection(t *testing.T) {
	proposal := openProposal(t)
	_, err := proposal.CastBallot(testIdentity(2), VoteDirection("maybe"), baseTime)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestCastBallotOverflowRollsBack(t *testing.T) {
	proposal := openProposal(t)
	_, err := proposal.CastBallot(testIdentity(2), VoteYes, baseTime)
	require.NoError(t, err)
	proposal.UniqueVoters = ^uint32(0)
	before := proposal

	_, err = proposal.CastBallot(testIdentity(3), VoteNo, baseTime)
	assert.ErrorIs(t, err, domainerrors.ErrOverflow)
	assert.Equal(t, before, proposal)
}

func TestCastBallotUnderflowRollsBack(t *testing.T) {
	proposal := openProposal(t)
	_, err := proposal.CastBallot(testIdentity(2), VoteYes, baseTime)
	require.NoError(t, err)
	proposal.YesVotes = 0
	before := proposal

	_, err = proposal.CastBallot(testIdentity(2), VoteNo, baseTime)
	assert.ErrorIs(t, err, domainerrors.ErrUnderflow)
	assert.Equal(t, before, proposal)
}

func TestCloseOutcomes(t *testing.T) {
	cases := []struct {
		name string
		yes  int
		no   int
		want Outcome
	}{
		{name: "yes majority", yes: 3, no: 1, want: OutcomeYesWins},
		{name: "no majority", yes: 1, no: 2, want: OutcomeNoWins},
		{name: "tie", yes: 2, no: 2, want: OutcomeTied},
		{name: "no votes", yes: 0, no: 0, want: OutcomeTied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proposal := openProposal(t)
			voter := uint32(10)
			for i := 0; i < tc.yes; i++ {
				_, err := proposal.CastBallot(testIdentity(voter), VoteYes, baseTime)
				require.NoError(t, err)
				voter++
			}
			for i := 0; i < tc.no; i++ {
				_, err := proposal.CastBallot(testIdentity(voter), VoteNo, baseTime)
				require.NoError(t, err)
				voter++
			}

			outcome, err := proposal.Close(testIdentity(1))
			require.NoError(t, err)
			assert.Equal(t, tc.want, outcome)
			assert.True(t, proposal.Closed)
			assert.Equal(t, tc.want, proposal.Outcome)
		})
	}
}

func TestCloseRejectsSecondClose(t *testing.T) {
	proposal := openProposal(t)
	_, err := proposal.CastBallot(testIdentity(2), VoteNo, baseTime)
	require.NoError(t, err)
	_, err = proposal.Close(testIdentity(1))
	require.NoError(t, err)

	_, err = proposal.Close(testIdentity(1))
	assert.ErrorIs(t, err, domainerrors.ErrProposalAlreadyClosed)
	assert.Equal(t, OutcomeNoWins, proposal.Outcome)

	_, err = proposal.CastBallot(testIdentity(3), VoteYes, baseTime)
	assert.ErrorIs(t, err, domainerrors.ErrProposalClosed)
}

func TestCloseRequiresAuthor(t *testing.T) {
	proposal := openProposal(t)

	_, err := proposal.Close(testIdentity(2))
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
	assert.False(t, proposal.Closed)
	assert.Equal(t, OutcomeNone, proposal.Outcome)
}

func TestCloseAfterExpirationIsAllowed(t *testing.T) {
	proposal := openProposal(t)
	assert.Equal(t, ProposalStatusExpired, proposal.Status(proposal.ExpirationTime))
	assert.Equal(t, OutcomeNone, proposal.Outcome)

	outcome, err := proposal.Close(testIdentity(1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTied, outcome)
	assert.Equal(t, ProposalStatusClosed, proposal.Status(proposal.ExpirationTime))
}

func TestConfidenceAndPercentages(t *testing.T) {
	proposal := openProposal(t)
	assert.Zero(t, proposal.Confidence())
	assert.Zero(t, proposal.YesPercentage())
	assert.Zero(t, proposal.NoPercentage())

	for i := uint32(0); i < 3; i++ {
		_, err := proposal.CastBallot(testIdentity(10+i), VoteYes, baseTime)
		require.NoError(t, err)
	}
	_, err := proposal.CastBallot(testIdentity(20), VoteNo, baseTime)
	require.NoError(t, err)

	assert.Equal(t, uint32(50), proposal.Confidence())
	assert.Equal(t, uint32(75), proposal.YesPercentage())
	assert.Equal(t, uint32(25), proposal.NoPercentage())

	_, err = proposal.CastBallot(testIdentity(21), VoteNo, baseTime)
	require.NoError(t, err)
	_, err = proposal.CastBallot(testIdentity(22), VoteNo, baseTime)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), proposal.Confidence())
	assert.Equal(t, uint32(50), proposal.YesPercentage())
}

func TestRandomBallotSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(20260301))
	for round := 0; round < 20; round++ {
		proposal := openProposal(t)
		population := uint32(1 + rng.Intn(MaxVoters+40))
		for step := 0; step < 600; step++ {
			voter := testIdentity(1000 + uint32(rng.Intn(int(population))))
			direction := VoteYes
			if rng.Intn(2) == 0 {
				direction = VoteNo
			}
			before := proposal
			_, err := proposal.CastBallot(voter, direction, baseTime)
			if err != nil {
				assert.Equal(t, before, proposal, "failed ballot must not mutate the record")
			}
			require.NoError(t, proposal.Validate())
			assert.Equal(t, uint32(proposal.VoterCount()), proposal.UniqueVoters)
			assert.LessOrEqual(t, proposal.VoterCount(), MaxVoters)
		}
	}
}

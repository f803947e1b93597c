package entities

import (
	"testing"

	domainerrors "govledger/contexts/governance/proposal-ledger/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSizeMatchesReservedLayout(t *testing.T) {
	assert.Equal(t, 9207, RecordSize)

	fresh := openProposal(t)
	encoded, err := fresh.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, encoded, RecordSize)
}

func TestRecordBinaryRoundTripPreservesBallots(t *testing.T) {
	proposal := openProposal(t)
	for i := uint32(0); i < 7; i++ {
		direction := VoteYes
		if i%2 == 1 {
			direction = VoteNo
		}
		_, err := proposal.CastBallot(testIdentity(50+i), direction, baseTime)
		require.NoError(t, err)
	}
	_, err := proposal.CastBallot(testIdentity(50), VoteNo, baseTime)
	require.NoError(t, err)
	_, err = proposal.Close(testIdentity(1))
	require.NoError(t, err)

	encoded, err := proposal.MarshalBinary()
	require.NoError(t, err)

	var decoded Proposal
	require.NoError(t, decoded.UnmarshalBinary(encoded))
	assert.Equal(t, proposal, decoded)
	assert.Equal(t, OutcomeNoWins, decoded.Outcome)
}

func TestUnmarshalRejectsCorruptRecords(t *testing.T) {
	proposal := openProposal(t)
	_, err := proposal.CastBallot(testIdentity(2), VoteYes, baseTime)
	require.NoError(t, err)
	encoded, err := proposal.MarshalBinary()
	require.NoError(t, err)

	var decoded Proposal
	assert.ErrorIs(t, decoded.UnmarshalBinary(encoded[:RecordSize-1]), domainerrors.ErrCorruptRecord)

	// Tally no longer matches the voter table.
	tampered := append([]byte(nil), encoded...)
	yesOffset := IdentitySize + 4 + MaxTitleLen + 4 + MaxDescriptionLen + IdentitySize + 16
	tampered[yesOffset] = 9
	assert.ErrorIs(t, decoded.UnmarshalBinary(tampered), domainerrors.ErrCorruptRecord)

	// Title length past its reserved capacity.
	tampered = append([]byte(nil), encoded...)
	tampered[IdentitySize] = MaxTitleLen + 1
	assert.ErrorIs(t, decoded.UnmarshalBinary(tampered), domainerrors.ErrCorruptRecord)
}

package entities

import (
	"math"
	"strings"
	"time"

	domainerrors "govledger/contexts/governance/proposal-ledger/domain/errors"
)

const (
	MaxVoters         = 250
	MaxTitleLen       = 100
	MaxDescriptionLen = 500

	MinProposalDuration = time.Hour
	MaxProposalDuration = 90 * 24 * time.Hour
)

type VoteDirection string

const (
	VoteYes VoteDirection = "yes"
	VoteNo  VoteDirection = "no"
)

func ParseVoteDirection(raw string) (VoteDirection, bool) {
	switch VoteDirection(strings.ToLower(strings.TrimSpace(raw))) {
	case VoteYes:
		return VoteYes, true
	case VoteNo:
		return VoteNo, true
	default:
		return "", false
	}
}

func (d VoteDirection) Valid() bool {
	return d == VoteYes || d == VoteNo
}

func (d VoteDirection) Opposite() VoteDirection {
	if d == VoteYes {
		return VoteNo
	}
	return VoteYes
}

type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeYesWins Outcome = "yes_wins"
	OutcomeNoWins  Outcome = "no_wins"
	OutcomeTied    Outcome = "tied"
)

// DecideOutcome classifies final tallies. Equal tallies, including 0-0, tie.
func DecideOutcome(yes uint32, no uint32) Outcome {
	switch {
	case yes > no:
		return OutcomeYesWins
	case no > yes:
		return OutcomeNoWins
	default:
		return OutcomeTied
	}
}

type ProposalStatus string

const (
	ProposalStatusOpen    ProposalStatus = "open"
	ProposalStatusExpired ProposalStatus = "expired"
	ProposalStatusClosed  ProposalStatus = "closed"
)

// VoterRecord is one voter's ballot. At most one of VotedYes/VotedNo is set.
type VoterRecord struct {
	Voter    Identity
	VotedYes bool
	VotedNo  bool
}

func (v VoterRecord) Direction() VoteDirection {
	switch {
	case v.VotedYes:
		return VoteYes
	case v.VotedNo:
		return VoteNo
	default:
		return ""
	}
}

type BallotKind string

const (
	BallotNew      BallotKind = "new"
	BallotSwitched BallotKind = "switched"
)

// BallotChange describes what a successful CastBallot did.
type BallotChange struct {
	Voter     Identity
	Kind      BallotKind
	Direction VoteDirection
	Previous  VoteDirection
}

// Proposal is the persisted ledger record. The voter table is a fixed array
// reserved at creation; voterCount tracks how much of it is in use.
type Proposal struct {
	Handle         Identity
	Author         Identity
	Title          string
	Description    string
	Subject        Identity
	CreatedAt      time.Time
	ExpirationTime time.Time
	YesVotes       uint32
	NoVotes        uint32
	UniqueVoters   uint32
	Closed         bool
	Outcome        Outcome

	voters     [MaxVoters]VoterRecord
	voterCount int
}

type NewProposalParams struct {
	Author         Identity
	Title          string
	Description    string
	Subject        Identity
	ExpirationTime time.Time
}

// NewProposal validates bounded text and initializes an open record stamped
// with now. The expiration time is stored as given (second precision).
func NewProposal(params NewProposalParams, now time.Time) (Proposal, error) {
	if len(params.Title) > MaxTitleLen {
		return Proposal{}, domainerrors.ErrTitleTooLong
	}
	if len(params.Description) > MaxDescriptionLen {
		return Proposal{}, domainerrors.ErrDescriptionTooLong
	}
	return Proposal{
		Handle:         DeriveHandle(params.Author, params.Title),
		Author:         params.Author,
		Title:          params.Title,
		Description:    params.Description,
		Subject:        params.Subject,
		CreatedAt:      unixSeconds(now),
		ExpirationTime: unixSeconds(params.ExpirationTime),
	}, nil
}

// CastBallot applies one voter's directional vote. A first ballot appends a
// voter entry; a ballot for the opposite side switches the existing entry.
// The record is left untouched on any error.
func (p *Proposal) CastBallot(voter Identity, direction VoteDirection, now time.Time) (BallotChange, error) {
	if !direction.Valid() {
		return BallotChange{}, domainerrors.ErrInvalidInput
	}
	if p.Closed {
		return BallotChange{}, domainerrors.ErrProposalClosed
	}
	if p.IsExpired(now) {
		return BallotChange{}, domainerrors.ErrProposalExpired
	}

	next := *p
	change := BallotChange{Voter: voter, Direction: direction}
	var err error

	idx := next.indexOf(voter)
	if idx < 0 {
		if next.voterCount >= MaxVoters {
			return BallotChange{}, domainerrors.ErrMaxVotersReached
		}
		next.voters[next.voterCount] = VoterRecord{
			Voter:    voter,
			VotedYes: direction == VoteYes,
			VotedNo:  direction == VoteNo,
		}
		next.voterCount++
		if next.UniqueVoters, err = checkedAdd(next.UniqueVoters, 1); err != nil {
			return BallotChange{}, err
		}
		if err := next.addToSide(direction); err != nil {
			return BallotChange{}, err
		}
		change.Kind = BallotNew
	} else {
		record := next.voters[idx]
		switch {
		case direction == VoteYes && record.VotedYes:
			return BallotChange{}, domainerrors.ErrAlreadyVotedYes
		case direction == VoteNo && record.VotedNo:
			return BallotChange{}, domainerrors.ErrAlreadyVotedNo
		}
		previous := record.Direction()
		if previous != "" {
			if err := next.subtractFromSide(previous); err != nil {
				return BallotChange{}, err
			}
		}
		if err := next.addToSide(direction); err != nil {
			return BallotChange{}, err
		}
		record.VotedYes = direction == VoteYes
		record.VotedNo = direction == VoteNo
		next.voters[idx] = record
		change.Kind = BallotSwitched
		change.Previous = previous
	}

	if _, err := checkedAdd(next.YesVotes, next.NoVotes); err != nil {
		return BallotChange{}, err
	}

	*p = next
	return change, nil
}

// Close finalizes the proposal on behalf of its author and records the
// majority outcome. Closing is terminal.
func (p *Proposal) Close(caller Identity) (Outcome, error) {
	if p.Closed {
		return OutcomeNone, domainerrors.ErrProposalAlreadyClosed
	}
	if caller != p.Author {
		return OutcomeNone, domainerrors.ErrUnauthorized
	}
	p.Closed = true
	p.Outcome = DecideOutcome(p.YesVotes, p.NoVotes)
	return p.Outcome, nil
}

// IsExpired reports whether voting is over: now >= expiration, compared in
// whole seconds.
func (p Proposal) IsExpired(now time.Time) bool {
	return now.Unix() >= p.ExpirationTime.Unix()
}

func (p Proposal) Status(now time.Time) ProposalStatus {
	switch {
	case p.Closed:
		return ProposalStatusClosed
	case p.IsExpired(now):
		return ProposalStatusExpired
	default:
		return ProposalStatusOpen
	}
}

func (p Proposal) TotalVotes() uint64 {
	return uint64(p.YesVotes) + uint64(p.NoVotes)
}

// Confidence is floor(100 * |yes - no| / (yes + no)), or 0 with no votes.
func (p Proposal) Confidence() uint32 {
	total := p.TotalVotes()
	if p.UniqueVoters == 0 || total == 0 {
		return 0
	}
	var diff uint64
	if p.YesVotes > p.NoVotes {
		diff = uint64(p.YesVotes - p.NoVotes)
	} else {
		diff = uint64(p.NoVotes - p.YesVotes)
	}
	return uint32(diff * 100 / total)
}

func (p Proposal) YesPercentage() uint32 {
	return percentage(p.YesVotes, p.TotalVotes())
}

func (p Proposal) NoPercentage() uint32 {
	return percentage(p.NoVotes, p.TotalVotes())
}

func (p Proposal) VoterCount() int {
	return p.voterCount
}

func (p Proposal) RemainingCapacity() int {
	return MaxVoters - p.voterCount
}

// Voters returns the used part of the voter table in insertion order.
func (p Proposal) Voters() []VoterRecord {
	items := make([]VoterRecord, p.voterCount)
	copy(items, p.voters[:p.voterCount])
	return items
}

func (p Proposal) FindVoter(voter Identity) (VoterRecord, bool) {
	idx := p.indexOf(voter)
	if idx < 0 {
		return VoterRecord{}, false
	}
	return p.voters[idx], true
}

// Validate checks the record invariants: voter table length matches
// unique_voters, tallies match the ballots, no ballot is on both or neither
// side, and the outcome is present exactly when the record is closed.
func (p Proposal) Validate() error {
	if len(p.Title) > MaxTitleLen || len(p.Description) > MaxDescriptionLen {
		return domainerrors.ErrCorruptRecord
	}
	if p.voterCount < 0 || p.voterCount > MaxVoters || uint32(p.voterCount) != p.UniqueVoters {
		return domainerrors.ErrCorruptRecord
	}
	var yes, no uint32
	for _, record := range p.voters[:p.voterCount] {
		if record.VotedYes == record.VotedNo {
			return domainerrors.ErrCorruptRecord
		}
		if record.VotedYes {
			yes++
		} else {
			no++
		}
	}
	if yes != p.YesVotes || no != p.NoVotes {
		return domainerrors.ErrCorruptRecord
	}
	if p.Closed != (p.Outcome != OutcomeNone) {
		return domainerrors.ErrCorruptRecord
	}
	switch p.Outcome {
	case OutcomeNone, OutcomeYesWins, OutcomeNoWins, OutcomeTied:
	default:
		return domainerrors.ErrCorruptRecord
	}
	return nil
}

func (p Proposal) indexOf(voter Identity) int {
	for i := 0; i < p.voterCount; i++ {
		if p.voters[i].Voter == voter {
			return i
		}
	}
	return -1
}

func (p *Proposal) addToSide(direction VoteDirection) error {
	var err error
	if direction == VoteYes {
		p.YesVotes, err = checkedAdd(p.YesVotes, 1)
	} else {
		p.NoVotes, err = checkedAdd(p.NoVotes, 1)
	}
	return err
}

func (p *Proposal) subtractFromSide(direction VoteDirection) error {
	var err error
	if direction == VoteYes {
		p.YesVotes, err = checkedSub(p.YesVotes, 1)
	} else {
		p.NoVotes, err = checkedSub(p.NoVotes, 1)
	}
	return err
}

func checkedAdd(a uint32, b uint32) (uint32, error) {
	if a > math.MaxUint32-b {
		return a, domainerrors.ErrOverflow
	}
	return a + b, nil
}

func checkedSub(a uint32, b uint32) (uint32, error) {
	if b > a {
		return a, domainerrors.ErrUnderflow
	}
	return a - b, nil
}

func percentage(part uint32, total uint64) uint32 {
	if total == 0 {
		total = 1
	}
	return uint32(uint64(part) * 100 / total)
}

func unixSeconds(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0).UTC()
}

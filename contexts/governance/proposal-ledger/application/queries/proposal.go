package queries

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "govledger/contexts/governance/proposal-ledger/application"
	"govledger/contexts/governance/proposal-ledger/domain/entities"
	domainerrors "govledger/contexts/governance/proposal-ledger/domain/errors"
	"govledger/contexts/governance/proposal-ledger/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ProposalView is the read model for one proposal, including the derived
// tallies clients display.
type ProposalView struct {
	Proposal          entities.Proposal
	Status            entities.ProposalStatus
	Confidence        uint32
	YesPercentage     uint32
	NoPercentage      uint32
	RemainingCapacity int
}

type BallotView struct {
	ProposalID string
	Voter      entities.VoterRecord
	Direction  entities.VoteDirection
}

type ListProposalsQuery struct {
	AuthorID  string
	SubjectID string
	Status    string
	Limit     int
}

type ProposalQueryUseCase struct {
	Proposals ports.ProposalReader
	Cache     ports.ProposalCache
	CacheTTL  time.Duration
	Clock     ports.Clock
	Logger    *slog.Logger
}

// GetProposal serves from the cache when possible and fills it on a miss.
// A fill never replaces an entry a writer stored meanwhile. Cache failures
// fall through to the repository.
func (uc ProposalQueryUseCase) GetProposal(ctx context.Context, proposalID string) (ProposalView, error) {
	handle, err := entities.ParseIdentity(proposalID)
	if err != nil {
		return ProposalView{}, domainerrors.ErrProposalNotFound
	}
	proposal, err := uc.load(ctx, handle)
	if err != nil {
		return ProposalView{}, err
	}
	return uc.view(proposal), nil
}

func (uc ProposalQueryUseCase) GetBallot(ctx context.Context, proposalID string, voterID string) (BallotView, error) {
	voter, err := entities.ParseIdentity(voterID)
	if err != nil {
		return BallotView{}, err
	}
	handle, err := entities.ParseIdentity(proposalID)
	if err != nil {
		return BallotView{}, domainerrors.ErrProposalNotFound
	}
	proposal, err := uc.load(ctx, handle)
	if err != nil {
		return BallotView{}, err
	}
	record, ok := proposal.FindVoter(voter)
	if !ok {
		return BallotView{}, domainerrors.ErrBallotNotFound
	}
	return BallotView{
		ProposalID: handle.String(),
		Voter:      record,
		Direction:  record.Direction(),
	}, nil
}

func (uc ProposalQueryUseCase) ListProposals(ctx context.Context, query ListProposalsQuery) ([]ProposalView, error) {
	filter := ports.ProposalFilter{}
	if raw := strings.TrimSpace(query.AuthorID); raw != "" {
		author, err := entities.ParseIdentity(raw)
		if err != nil {
			return nil, err
		}
		filter.Author = &author
	}
	if raw := strings.TrimSpace(query.SubjectID); raw != "" {
		subject, err := entities.ParseIdentity(raw)
		if err != nil {
			return nil, err
		}
		filter.Subject = &subject
	}

	now := uc.now()
	status := entities.ProposalStatus(strings.ToLower(strings.TrimSpace(query.Status)))
	closed := status == entities.ProposalStatusClosed
	switch status {
	case "":
	case entities.ProposalStatusClosed:
		filter.Closed = &closed
	case entities.ProposalStatusOpen:
		filter.Closed = &closed
		filter.OpenAt = &now
	case entities.ProposalStatusExpired:
		filter.Closed = &closed
		filter.ExpiredAt = &now
	default:
		return nil, domainerrors.ErrInvalidInput
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	filter.Limit = limit

	items, err := uc.Proposals.ListProposals(ctx, filter)
	if err != nil {
		application.ResolveLogger(uc.Logger).Error("proposal list failed",
			"event", "ledger_proposal_list_failed",
			"module", application.ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return nil, err
	}

	views := make([]ProposalView, 0, len(items))
	for _, item := range items {
		views = append(views, uc.viewAt(item, now))
	}
	return views, nil
}

func (uc ProposalQueryUseCase) load(ctx context.Context, handle entities.Identity) (entities.Proposal, error) {
	logger := application.ResolveLogger(uc.Logger)
	if uc.Cache != nil {
		cached, found, err := uc.Cache.GetCachedProposal(ctx, handle)
		if err != nil {
			logger.Warn("proposal cache read failed",
				"event", "ledger_cache_read_failed",
				"module", application.ModuleName,
				"layer", "application",
				"proposal_id", handle.String(),
				"error", err.Error(),
			)
		} else if found {
			return cached, nil
		}
	}

	proposal, err := uc.Proposals.GetProposal(ctx, handle)
	if err != nil {
		return entities.Proposal{}, err
	}
	if uc.Cache != nil && uc.CacheTTL > 0 {
		if err := uc.Cache.FillCachedProposal(ctx, proposal, uc.CacheTTL); err != nil {
			logger.Warn("proposal cache fill failed",
				"event", "ledger_cache_fill_failed",
				"module", application.ModuleName,
				"layer", "application",
				"proposal_id", handle.String(),
				"error", err.Error(),
			)
		}
	}
	return proposal, nil
}

func (uc ProposalQueryUseCase) view(proposal entities.Proposal) ProposalView {
	return uc.viewAt(proposal, uc.now())
}

func (uc ProposalQueryUseCase) viewAt(proposal entities.Proposal, now time.Time) ProposalView {
	return ProposalView{
		Proposal:          proposal,
		Status:            proposal.Status(now),
		Confidence:        proposal.Confidence(),
		YesPercentage:     proposal.YesPercentage(),
		NoPercentage:      proposal.NoPercentage(),
		RemainingCapacity: proposal.RemainingCapacity(),
	}
}

func (uc ProposalQueryUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

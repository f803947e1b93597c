package httpadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"govledger/contexts/governance/proposal-ledger/application/commands"
	"govledger/contexts/governance/proposal-ledger/application/queries"
	"govledger/contexts/governance/proposal-ledger/domain/entities"
	domainerrors "govledger/contexts/governance/proposal-ledger/domain/errors"
	httptransport "govledger/contexts/governance/proposal-ledger/transport/http"
)

type Handler struct {
	Proposals commands.ProposalUseCase
	Queries   queries.ProposalQueryUseCase
	Logger    *slog.Logger
}

func (h Handler) CreateProposalHandler(
	ctx context.Context,
	authorID string,
	idempotencyKey string,
	req httptransport.CreateProposalRequest,
) (httptransport.ProposalResponse, error) {
	result, err := h.Proposals.CreateProposal(ctx, commands.CreateProposalCommand{
		AuthorID:       authorID,
		IdempotencyKey: idempotencyKey,
		Title:          req.Title,
		Description:    req.Description,
		SubjectID:      req.SubjectID,
		ExpirationTime: req.ExpirationTime,
	})
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	resp := h.mapProposal(result.Proposal, false)
	resp.Replayed = result.Replayed
	return resp, nil
}

func (h Handler) VoteHandler(
	ctx context.Context,
	voterID string,
	proposalID string,
	idempotencyKey string,
	req httptransport.VoteRequest,
) (httptransport.VoteResponse, error) {
	result, err := h.Proposals.VoteOnProposal(ctx, commands.VoteCommand{
		VoterID:        voterID,
		ProposalID:     proposalID,
		Direction:      req.Direction,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return h.mapVote(result, req.Direction), nil
}

func (h Handler) CloseProposalHandler(
	ctx context.Context,
	callerID string,
	proposalID string,
	idempotencyKey string,
) (httptransport.CloseProposalResponse, error) {
	result, err := h.Proposals.CloseProposal(ctx, commands.CloseProposalCommand{
		CallerID:       callerID,
		ProposalID:     proposalID,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return httptransport.CloseProposalResponse{}, err
	}
	return h.mapClose(result), nil
}

// InstructionHandler decodes the tagged instruction and runs it through the
// single dispatch entry point. The signer is always the token identity.
func (h Handler) InstructionHandler(
	ctx context.Context,
	signerID string,
	idempotencyKey string,
	req httptransport.InstructionRequest,
) (httptransport.InstructionResponse, error) {
	op := strings.ToLower(strings.TrimSpace(req.Op))
	var ix commands.Instruction
	switch op {
	case "create":
		expiration := time.Time{}
		if req.ExpirationTime != nil {
			expiration = *req.ExpirationTime
		}
		ix = commands.CreateProposalCommand{
			AuthorID:       signerID,
			IdempotencyKey: idempotencyKey,
			Title:          req.Title,
			Description:    req.Description,
			SubjectID:      req.SubjectID,
			ExpirationTime: expiration,
		}
	case "vote":
		ix = commands.VoteCommand{
			VoterID:        signerID,
			ProposalID:     req.ProposalID,
			Direction:      req.Direction,
			IdempotencyKey: idempotencyKey,
		}
	case "close":
		ix = commands.CloseProposalCommand{
			CallerID:       signerID,
			ProposalID:     req.ProposalID,
			IdempotencyKey: idempotencyKey,
		}
	default:
		return httptransport.InstructionResponse{}, domainerrors.ErrInvalidInput
	}

	result, err := h.Proposals.Execute(ctx, ix)
	if err != nil {
		return httptransport.InstructionResponse{}, err
	}
	resp := httptransport.InstructionResponse{Op: op}
	switch {
	case result.Create != nil:
		proposal := h.mapProposal(result.Create.Proposal, false)
		proposal.Replayed = result.Create.Replayed
		resp.Proposal = &proposal
	case result.Vote != nil:
		vote := h.mapVote(*result.Vote, req.Direction)
		resp.Vote = &vote
	case result.Close != nil:
		closed := h.mapClose(*result.Close)
		resp.Close = &closed
	}
	return resp, nil
}

func (h Handler) GetProposalHandler(ctx context.Context, proposalID string) (httptransport.ProposalResponse, error) {
	view, err := h.Queries.GetProposal(ctx, proposalID)
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	return mapView(view, true), nil
}

func (h Handler) GetBallotHandler(ctx context.Context, proposalID string, voterID string) (httptransport.BallotResponse, error) {
	ballot, err := h.Queries.GetBallot(ctx, proposalID, voterID)
	if err != nil {
		return httptransport.BallotResponse{}, err
	}
	return mapBallot(ballot.ProposalID, ballot.Voter), nil
}

func (h Handler) ListProposalsHandler(
	ctx context.Context,
	authorID string,
	subjectID string,
	status string,
	limit int,
) (httptransport.ProposalListResponse, error) {
	views, err := h.Queries.ListProposals(ctx, queries.ListProposalsQuery{
		AuthorID:  authorID,
		SubjectID: subjectID,
		Status:    status,
		Limit:     limit,
	})
	if err != nil {
		return httptransport.ProposalListResponse{}, err
	}
	items := make([]httptransport.ProposalResponse, 0, len(views))
	for _, view := range views {
		items = append(items, mapView(view, false))
	}
	return httptransport.ProposalListResponse{Items: items}, nil
}

func (h Handler) mapVote(result commands.VoteResult, requested string) httptransport.VoteResponse {
	direction := string(result.Change.Direction)
	if direction == "" {
		parsed, _ := entities.ParseVoteDirection(requested)
		direction = string(parsed)
	}
	return httptransport.VoteResponse{
		Proposal:          h.mapProposal(result.Proposal, false),
		BallotChange:      string(result.Change.Kind),
		Direction:         direction,
		PreviousDirection: string(result.Change.Previous),
		Confidence:        result.Confidence,
		Replayed:          result.Replayed,
	}
}

func (h Handler) mapClose(result commands.CloseProposalResult) httptransport.CloseProposalResponse {
	return httptransport.CloseProposalResponse{
		Proposal: h.mapProposal(result.Proposal, false),
		Outcome:  string(result.Outcome),
		Replayed: result.Replayed,
	}
}

func (h Handler) mapProposal(proposal entities.Proposal, withVoters bool) httptransport.ProposalResponse {
	now := time.Now().UTC()
	if h.Proposals.Clock != nil {
		now = h.Proposals.Clock.Now().UTC()
	}
	return mapView(queries.ProposalView{
		Proposal:          proposal,
		Status:            proposal.Status(now),
		Confidence:        proposal.Confidence(),
		YesPercentage:     proposal.YesPercentage(),
		NoPercentage:      proposal.NoPercentage(),
		RemainingCapacity: proposal.RemainingCapacity(),
	}, withVoters)
}

func mapView(view queries.ProposalView, withVoters bool) httptransport.ProposalResponse {
	proposal := view.Proposal
	resp := httptransport.ProposalResponse{
		ProposalID:        proposal.Handle.String(),
		AuthorID:          proposal.Author.String(),
		Title:             proposal.Title,
		Description:       proposal.Description,
		SubjectID:         proposal.Subject.String(),
		CreatedAt:         proposal.CreatedAt,
		ExpirationTime:    proposal.ExpirationTime,
		Status:            string(view.Status),
		YesVotes:          proposal.YesVotes,
		NoVotes:           proposal.NoVotes,
		UniqueVoters:      proposal.UniqueVoters,
		Closed:            proposal.Closed,
		Outcome:           string(proposal.Outcome),
		Confidence:        view.Confidence,
		YesPercentage:     view.YesPercentage,
		NoPercentage:      view.NoPercentage,
		RemainingCapacity: view.RemainingCapacity,
	}
	if withVoters {
		voters := proposal.Voters()
		resp.Voters = make([]httptransport.BallotResponse, 0, len(voters))
		for _, voter := range voters {
			resp.Voters = append(resp.Voters, mapBallot(resp.ProposalID, voter))
		}
	}
	return resp
}

func mapBallot(proposalID string, record entities.VoterRecord) httptransport.BallotResponse {
	return httptransport.BallotResponse{
		ProposalID: proposalID,
		VoterID:    record.Voter.String(),
		Direction:  string(record.Direction()),
		VotedYes:   record.VotedYes,
		VotedNo:    record.VotedNo,
	}
}

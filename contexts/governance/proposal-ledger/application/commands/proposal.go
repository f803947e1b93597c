package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "govledger/contexts/governance/proposal-ledger/application"
	"govledger/contexts/governance/proposal-ledger/domain/entities"
	domainerrors "govledger/contexts/governance/proposal-ledger/domain/errors"
	"govledger/contexts/governance/proposal-ledger/ports"
	contractsv1 "govledger/contracts/events/v1"
)

// CreateProposalCommand is the write-model input for create_proposal.
// AuthorID must be the verified caller identity.
type CreateProposalCommand struct {
	AuthorID       string
	IdempotencyKey string
	Title          string
	Description    string
	SubjectID      string
	ExpirationTime time.Time
}

type CreateProposalResult struct {
	Proposal entities.Proposal
	Replayed bool
}

// VoteCommand is the write-model input for vote_on_proposal.
type VoteCommand struct {
	VoterID        string
	ProposalID     string
	Direction      string
	IdempotencyKey string
}

// VoteResult carries the updated record plus the ballot change. Change is
// zero on replays because the original change is not stored.
type VoteResult struct {
	Proposal   entities.Proposal
	Change     entities.BallotChange
	Confidence uint32
	Replayed   bool
}

// CloseProposalCommand is the write-model input for close_proposal.
type CloseProposalCommand struct {
	CallerID       string
	ProposalID     string
	IdempotencyKey string
}

type CloseProposalResult struct {
	Proposal entities.Proposal
	Outcome  entities.Outcome
	Replayed bool
}

// DurationPolicy bounds expiration_time relative to created_at at creation.
type DurationPolicy struct {
	Enforce bool
	Min     time.Duration
	Max     time.Duration
}

// DefaultDurationPolicy uses the ledger's declared 1 hour to 90 day window.
func DefaultDurationPolicy() DurationPolicy {
	return DurationPolicy{
		Enforce: true,
		Min:     entities.MinProposalDuration,
		Max:     entities.MaxProposalDuration,
	}
}

// ProposalUseCase orchestrates the three ledger operations. Each mutation
// runs inside one ProposalRepository write, so the lookup/branch/mutate
// sequence, its outbox event and its idempotency key commit together per
// record. Idempotency keys are optional; with a key, retried commands replay
// instead of re-applying.
type ProposalUseCase struct {
	Proposals      ports.ProposalRepository
	Idempotency    ports.IdempotencyStore
	Cache          ports.ProposalCache
	CacheTTL       time.Duration
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	Durations      DurationPolicy
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func (uc ProposalUseCase) CreateProposal(ctx context.Context, cmd CreateProposalCommand) (CreateProposalResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("proposal create processing started",
		"event", "ledger_proposal_create_started",
		"module", application.ModuleName,
		"layer", "application",
		"author_id", strings.TrimSpace(cmd.AuthorID),
		"subject_id", strings.TrimSpace(cmd.SubjectID),
	)

	author, err := parseParticipant(cmd.AuthorID)
	if err != nil {
		logger.Warn("proposal create validation failed",
			"event", "ledger_proposal_create_validation_failed",
			"module", application.ModuleName,
			"layer", "application",
			"author_id", strings.TrimSpace(cmd.AuthorID),
			"error", err.Error(),
		)
		return CreateProposalResult{}, err
	}
	subject, err := entities.ParseIdentity(cmd.SubjectID)
	if err != nil {
		logger.Warn("proposal create validation failed",
			"event", "ledger_proposal_create_validation_failed",
			"module", application.ModuleName,
			"layer", "application",
			"subject_id", strings.TrimSpace(cmd.SubjectID),
			"error", err.Error(),
		)
		return CreateProposalResult{}, err
	}

	now := uc.now()
	requestHash := hashCommand("create_proposal", map[string]string{
		"author_id":       author.String(),
		"title":           cmd.Title,
		"description":     cmd.Description,
		"subject_id":      subject.String(),
		"expiration_time": cmd.ExpirationTime.UTC().Format(time.RFC3339),
	})
	if record, found, err := uc.lookupReplay(ctx, cmd.IdempotencyKey, requestHash, now); err != nil {
		return CreateProposalResult{}, err
	} else if found {
		proposal, err := uc.loadReplayed(ctx, record)
		if err != nil {
			return CreateProposalResult{}, err
		}
		logger.Info("proposal create replayed",
			"event", "ledger_proposal_create_replayed",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", proposal.Handle.String(),
		)
		return CreateProposalResult{Proposal: proposal, Replayed: true}, nil
	}

	proposal, err := entities.NewProposal(entities.NewProposalParams{
		Author:         author,
		Title:          cmd.Title,
		Description:    cmd.Description,
		Subject:        subject,
		ExpirationTime: cmd.ExpirationTime,
	}, now)
	if err != nil {
		logger.Warn("proposal create rejected",
			"event", "ledger_proposal_create_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"author_id", author.String(),
			"error", err.Error(),
		)
		return CreateProposalResult{}, err
	}
	if err := uc.Durations.check(proposal); err != nil {
		logger.Warn("proposal create rejected",
			"event", "ledger_proposal_create_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"author_id", author.String(),
			"expiration_time", proposal.ExpirationTime.Format(time.RFC3339),
			"error", err.Error(),
		)
		return CreateProposalResult{}, err
	}

	proposalID := proposal.Handle.String()
	eventID, err := uc.newEventID(ctx)
	if err != nil {
		return CreateProposalResult{}, err
	}
	idempotency := uc.idempotencyRecord(cmd.IdempotencyKey, requestHash, proposalID, now)
	result, err := uc.Proposals.CreateProposal(ctx, proposal, ports.ProposalWrite{
		Idempotency: idempotency,
		ReceivedAt:  now,
		Apply: func(created *entities.Proposal) (*ports.EventEnvelope, error) {
			return uc.ledgerEvent(eventID, contractsv1.EventProposalCreated, *created, uc.now(), map[string]any{
				"title":           created.Title,
				"created_at":      created.CreatedAt.Format(time.RFC3339),
				"expiration_time": created.ExpirationTime.Format(time.RFC3339),
			})
		},
	})
	if errors.Is(err, domainerrors.ErrProposalExists) && idempotency != nil {
		// A concurrent request with the same key may have committed first.
		if record, found, lookupErr := uc.lookupReplay(ctx, cmd.IdempotencyKey, requestHash, now); lookupErr != nil {
			return CreateProposalResult{}, lookupErr
		} else if found {
			replayed, loadErr := uc.loadReplayed(ctx, record)
			if loadErr != nil {
				return CreateProposalResult{}, loadErr
			}
			return CreateProposalResult{Proposal: replayed, Replayed: true}, nil
		}
	}
	if err != nil {
		logger.Warn("proposal create rejected",
			"event", "ledger_proposal_create_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"author_id", author.String(),
			"proposal_id", proposalID,
			"error", err.Error(),
		)
		return CreateProposalResult{}, err
	}
	if result.Replayed {
		logger.Info("proposal create replayed",
			"event", "ledger_proposal_create_replayed",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", proposalID,
		)
		return CreateProposalResult{Proposal: result.Proposal, Replayed: true}, nil
	}
	uc.refreshCache(ctx, logger, result)

	logger.Info("proposal created",
		"event", "ledger_proposal_created",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", proposalID,
		"author_id", author.String(),
		"subject_id", subject.String(),
		"expiration_time", proposal.ExpirationTime.Format(time.RFC3339),
	)
	return CreateProposalResult{Proposal: result.Proposal}, nil
}

func (uc ProposalUseCase) VoteOnProposal(ctx context.Context, cmd VoteCommand) (VoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("proposal vote processing started",
		"event", "ledger_proposal_vote_started",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", strings.TrimSpace(cmd.ProposalID),
		"voter_id", strings.TrimSpace(cmd.VoterID),
	)

	voter, err := parseParticipant(cmd.VoterID)
	if err != nil {
		return VoteResult{}, uc.validationFailed(logger, "vote", cmd.ProposalID, err)
	}
	handle, err := entities.ParseIdentity(cmd.ProposalID)
	if err != nil {
		return VoteResult{}, uc.validationFailed(logger, "vote", cmd.ProposalID, domainerrors.ErrProposalNotFound)
	}
	direction, ok := entities.ParseVoteDirection(cmd.Direction)
	if !ok {
		return VoteResult{}, uc.validationFailed(logger, "vote", cmd.ProposalID, domainerrors.ErrInvalidInput)
	}

	now := uc.now()
	requestHash := hashCommand("vote_on_proposal", map[string]string{
		"voter_id":    voter.String(),
		"proposal_id": handle.String(),
		"direction":   string(direction),
	})
	if record, found, err := uc.lookupReplay(ctx, cmd.IdempotencyKey, requestHash, now); err != nil {
		return VoteResult{}, err
	} else if found {
		proposal, err := uc.loadReplayed(ctx, record)
		if err != nil {
			return VoteResult{}, err
		}
		logger.Info("proposal vote replayed",
			"event", "ledger_proposal_vote_replayed",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", proposal.Handle.String(),
			"voter_id", voter.String(),
		)
		return VoteResult{Proposal: proposal, Confidence: proposal.Confidence(), Replayed: true}, nil
	}

	eventID, err := uc.newEventID(ctx)
	if err != nil {
		return VoteResult{}, err
	}
	var change entities.BallotChange
	result, err := uc.Proposals.UpdateProposal(ctx, handle, ports.ProposalWrite{
		Idempotency: uc.idempotencyRecord(cmd.IdempotencyKey, requestHash, handle.String(), now),
		ReceivedAt:  now,
		Apply: func(proposal *entities.Proposal) (*ports.EventEnvelope, error) {
			// Expiry and the event timestamp are read under the record lock.
			castAt := uc.now()
			var castErr error
			change, castErr = proposal.CastBallot(voter, direction, castAt)
			if castErr != nil {
				return nil, castErr
			}
			return uc.ledgerEvent(eventID, contractsv1.EventProposalVoted, *proposal, castAt, map[string]any{
				"voter_id":           voter.String(),
				"direction":          string(change.Direction),
				"previous_direction": string(change.Previous),
				"ballot_change":      string(change.Kind),
				"confidence":         proposal.Confidence(),
			})
		},
	})
	if err != nil {
		logger.Warn("proposal vote rejected",
			"event", "ledger_proposal_vote_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", handle.String(),
			"voter_id", voter.String(),
			"direction", string(direction),
			"error", err.Error(),
		)
		return VoteResult{}, err
	}
	updated := result.Proposal
	if result.Replayed {
		logger.Info("proposal vote replayed",
			"event", "ledger_proposal_vote_replayed",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", handle.String(),
			"voter_id", voter.String(),
		)
		return VoteResult{Proposal: updated, Confidence: updated.Confidence(), Replayed: true}, nil
	}
	uc.refreshCache(ctx, logger, result)

	logger.Info("proposal vote recorded",
		"event", "ledger_proposal_voted",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", handle.String(),
		"voter_id", voter.String(),
		"direction", string(change.Direction),
		"ballot_change", string(change.Kind),
		"yes_votes", updated.YesVotes,
		"no_votes", updated.NoVotes,
		"unique_voters", updated.UniqueVoters,
		"confidence", updated.Confidence(),
	)
	return VoteResult{Proposal: updated, Change: change, Confidence: updated.Confidence()}, nil
}

func (uc ProposalUseCase) CloseProposal(ctx context.Context, cmd CloseProposalCommand) (CloseProposalResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("proposal close processing started",
		"event", "ledger_proposal_close_started",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", strings.TrimSpace(cmd.ProposalID),
		"caller_id", strings.TrimSpace(cmd.CallerID),
	)

	caller, err := parseParticipant(cmd.CallerID)
	if err != nil {
		return CloseProposalResult{}, uc.validationFailed(logger, "close", cmd.ProposalID, err)
	}
	handle, err := entities.ParseIdentity(cmd.ProposalID)
	if err != nil {
		return CloseProposalResult{}, uc.validationFailed(logger, "close", cmd.ProposalID, domainerrors.ErrProposalNotFound)
	}

	now := uc.now()
	requestHash := hashCommand("close_proposal", map[string]string{
		"caller_id":   caller.String(),
		"proposal_id": handle.String(),
	})
	if record, found, err := uc.lookupReplay(ctx, cmd.IdempotencyKey, requestHash, now); err != nil {
		return CloseProposalResult{}, err
	} else if found {
		proposal, err := uc.loadReplayed(ctx, record)
		if err != nil {
			return CloseProposalResult{}, err
		}
		return CloseProposalResult{Proposal: proposal, Outcome: proposal.Outcome, Replayed: true}, nil
	}

	eventID, err := uc.newEventID(ctx)
	if err != nil {
		return CloseProposalResult{}, err
	}
	var outcome entities.Outcome
	result, err := uc.Proposals.UpdateProposal(ctx, handle, ports.ProposalWrite{
		Idempotency: uc.idempotencyRecord(cmd.IdempotencyKey, requestHash, handle.String(), now),
		ReceivedAt:  now,
		Apply: func(proposal *entities.Proposal) (*ports.EventEnvelope, error) {
			var closeErr error
			outcome, closeErr = proposal.Close(caller)
			if closeErr != nil {
				return nil, closeErr
			}
			return uc.ledgerEvent(eventID, contractsv1.EventProposalClosed, *proposal, uc.now(), map[string]any{
				"outcome":    string(outcome),
				"confidence": proposal.Confidence(),
			})
		},
	})
	if err != nil {
		logger.Warn("proposal close rejected",
			"event", "ledger_proposal_close_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", handle.String(),
			"caller_id", caller.String(),
			"error", err.Error(),
		)
		return CloseProposalResult{}, err
	}
	updated := result.Proposal
	if result.Replayed {
		return CloseProposalResult{Proposal: updated, Outcome: updated.Outcome, Replayed: true}, nil
	}
	uc.refreshCache(ctx, logger, result)

	logger.Info("proposal closed",
		"event", "ledger_proposal_closed",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", handle.String(),
		"outcome", string(outcome),
		"yes_votes", updated.YesVotes,
		"no_votes", updated.NoVotes,
		"confidence", updated.Confidence(),
	)
	return CloseProposalResult{Proposal: updated, Outcome: outcome}, nil
}

func (p DurationPolicy) check(proposal entities.Proposal) error {
	if !p.Enforce {
		return nil
	}
	window := proposal.ExpirationTime.Sub(proposal.CreatedAt)
	if window < p.Min || (p.Max > 0 && window > p.Max) {
		return domainerrors.ErrInvalidExpiration
	}
	return nil
}

func (uc ProposalUseCase) validationFailed(logger *slog.Logger, op string, proposalID string, err error) error {
	logger.Warn("proposal "+op+" validation failed",
		"event", "ledger_proposal_"+op+"_validation_failed",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", strings.TrimSpace(proposalID),
		"error", err.Error(),
	)
	return err
}

func (uc ProposalUseCase) lookupReplay(
	ctx context.Context,
	key string,
	requestHash string,
	now time.Time,
) (ports.IdempotencyRecord, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" || uc.Idempotency == nil {
		return ports.IdempotencyRecord{}, false, nil
	}
	record, found, err := uc.Idempotency.Get(ctx, key, now)
	if err != nil {
		application.ResolveLogger(uc.Logger).Error("proposal idempotency lookup failed",
			"event", "ledger_idempotency_lookup_failed",
			"module", application.ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return ports.IdempotencyRecord{}, false, err
	}
	if !found {
		return ports.IdempotencyRecord{}, false, nil
	}
	if record.RequestHash != requestHash {
		return ports.IdempotencyRecord{}, false, domainerrors.ErrIdempotencyConflict
	}
	return record, true, nil
}

func (uc ProposalUseCase) loadReplayed(ctx context.Context, record ports.IdempotencyRecord) (entities.Proposal, error) {
	handle, err := entities.ParseIdentity(record.ProposalID)
	if err != nil {
		return entities.Proposal{}, domainerrors.ErrProposalNotFound
	}
	return uc.Proposals.GetProposal(ctx, handle)
}

// idempotencyRecord is the key row committed with a mutation, or nil when
// the caller sent no key.
func (uc ProposalUseCase) idempotencyRecord(
	key string,
	requestHash string,
	proposalID string,
	now time.Time,
) *ports.IdempotencyRecord {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return &ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		ProposalID:  proposalID,
		ExpiresAt:   now.Add(uc.resolveIdempotencyTTL()),
	}
}

// refreshCache writes the committed revision through to the cache. When
// that fails the entry is dropped instead; neither failure is returned
// because the mutation has already committed.
func (uc ProposalUseCase) refreshCache(ctx context.Context, logger *slog.Logger, result ports.ProposalWriteResult) {
	if uc.Cache == nil {
		return
	}
	handle := result.Proposal.Handle
	if uc.CacheTTL > 0 {
		err := uc.Cache.PutCachedProposal(ctx, result.Proposal, result.Revision, uc.CacheTTL)
		if err == nil {
			return
		}
		logger.Warn("proposal cache write failed",
			"event", "ledger_cache_write_failed",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", handle.String(),
			"revision", result.Revision,
			"error", err.Error(),
		)
	}
	if err := uc.Cache.InvalidateProposal(ctx, handle); err != nil {
		logger.Warn("proposal cache invalidation failed",
			"event", "ledger_cache_invalidate_failed",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", handle.String(),
			"error", err.Error(),
		)
	}
}

func (uc ProposalUseCase) newEventID(ctx context.Context) (string, error) {
	if uc.IDGen == nil {
		return "", errors.New("id generator is required to emit ledger events")
	}
	return uc.IDGen.NewID(ctx)
}

// ledgerEvent builds the outbox envelope for a mutation from the record as
// it will be committed.
func (uc ProposalUseCase) ledgerEvent(
	eventID string,
	eventType string,
	proposal entities.Proposal,
	occurredAt time.Time,
	metadata map[string]any,
) (*ports.EventEnvelope, error) {
	data := map[string]any{
		"proposal_id":   proposal.Handle.String(),
		"author_id":     proposal.Author.String(),
		"subject_id":    proposal.Subject.String(),
		"yes_votes":     proposal.YesVotes,
		"no_votes":      proposal.NoVotes,
		"unique_voters": proposal.UniqueVoters,
		"closed":        proposal.Closed,
		"occurred_at":   occurredAt.Format(time.RFC3339),
	}
	for key, value := range metadata {
		data[key] = value
	}
	envelope, err := newLedgerEnvelope(eventID, eventType, proposal.Handle.String(), occurredAt, data)
	if err != nil {
		return nil, err
	}
	return &envelope, nil
}

func (uc ProposalUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc ProposalUseCase) resolveIdempotencyTTL() time.Duration {
	if uc.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return uc.IdempotencyTTL
}

// parseParticipant parses an author/voter/caller identity; the zero key is
// never a valid participant.
func parseParticipant(raw string) (entities.Identity, error) {
	id, err := entities.ParseIdentity(raw)
	if err != nil {
		return entities.Identity{}, err
	}
	if id.IsZero() {
		return entities.Identity{}, domainerrors.ErrInvalidIdentity
	}
	return id, nil
}

func hashCommand(op string, fields map[string]string) string {
	payload := make(map[string]string, len(fields)+1)
	for key, value := range fields {
		payload[key] = value
	}
	payload["op"] = op
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

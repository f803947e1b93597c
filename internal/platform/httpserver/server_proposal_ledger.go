package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	ledgererrors "govledger/contexts/governance/proposal-ledger/domain/errors"
	ledgerhttp "govledger/contexts/governance/proposal-ledger/transport/http"
)

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	authorID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.CreateProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.CreateProposalHandler(r.Context(), authorID, r.Header.Get("Idempotency-Key"), req)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeLedgerError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	resp, err := s.ledger.Handler.ListProposalsHandler(
		r.Context(),
		query.Get("author"),
		query.Get("subject"),
		query.Get("status"),
		limit,
	)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.GetProposalHandler(r.Context(), r.PathValue("proposal_id"))
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBallot(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.GetBallotHandler(r.Context(), r.PathValue("proposal_id"), r.PathValue("voter_id"))
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	voterID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.VoteHandler(
		r.Context(),
		voterID,
		r.PathValue("proposal_id"),
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCloseProposal(w http.ResponseWriter, r *http.Request) {
	callerID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.CloseProposalHandler(
		r.Context(),
		callerID,
		r.PathValue("proposal_id"),
		r.Header.Get("Idempotency-Key"),
	)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInstruction(w http.ResponseWriter, r *http.Request) {
	signerID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.InstructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.InstructionHandler(r.Context(), signerID, r.Header.Get("Idempotency-Key"), req)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	status := http.StatusOK
	if resp.Proposal != nil && !resp.Proposal.Replayed {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func writeLedgerDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledgererrors.ErrTitleTooLong):
		writeLedgerError(w, http.StatusBadRequest, "title_too_long", err.Error())
	case errors.Is(err, ledgererrors.ErrDescriptionTooLong):
		writeLedgerError(w, http.StatusBadRequest, "description_too_long", err.Error())
	case errors.Is(err, ledgererrors.ErrInvalidIdentity):
		writeLedgerError(w, http.StatusBadRequest, "invalid_identity", err.Error())
	case errors.Is(err, ledgererrors.ErrInvalidExpiration):
		writeLedgerError(w, http.StatusBadRequest, "invalid_expiration", err.Error())
	case errors.Is(err, ledgererrors.ErrInvalidInput):
		writeLedgerError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, ledgererrors.ErrUnauthorized):
		writeLedgerError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, ledgererrors.ErrProposalNotFound):
		writeLedgerError(w, http.StatusNotFound, "proposal_not_found", err.Error())
	case errors.Is(err, ledgererrors.ErrBallotNotFound):
		writeLedgerError(w, http.StatusNotFound, "ballot_not_found", err.Error())
	case errors.Is(err, ledgererrors.ErrProposalClosed):
		writeLedgerError(w, http.StatusConflict, "proposal_closed", err.Error())
	case errors.Is(err, ledgererrors.ErrProposalExpired):
		writeLedgerError(w, http.StatusConflict, "proposal_expired", err.Error())
	case errors.Is(err, ledgererrors.ErrAlreadyVotedYes):
		writeLedgerError(w, http.StatusConflict, "already_voted_yes", err.Error())
	case errors.Is(err, ledgererrors.ErrAlreadyVotedNo):
		writeLedgerError(w, http.StatusConflict, "already_voted_no", err.Error())
	case errors.Is(err, ledgererrors.ErrMaxVotersReached):
		writeLedgerError(w, http.StatusConflict, "max_voters_reached", err.Error())
	case errors.Is(err, ledgererrors.ErrProposalAlreadyClosed):
		writeLedgerError(w, http.StatusConflict, "proposal_already_closed", err.Error())
	case errors.Is(err, ledgererrors.ErrProposalExists):
		writeLedgerError(w, http.StatusConflict, "proposal_exists", err.Error())
	case errors.Is(err, ledgererrors.ErrIdempotencyConflict):
		writeLedgerError(w, http.StatusConflict, "idempotency_conflict", err.Error())
	case errors.Is(err, ledgererrors.ErrOverflow):
		writeLedgerError(w, http.StatusInternalServerError, "overflow", err.Error())
	case errors.Is(err, ledgererrors.ErrUnderflow):
		writeLedgerError(w, http.StatusInternalServerError, "underflow", err.Error())
	case errors.Is(err, ledgererrors.ErrCorruptRecord):
		writeLedgerError(w, http.StatusInternalServerError, "corrupt_record", err.Error())
	default:
		writeLedgerError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeLedgerError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ledgerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

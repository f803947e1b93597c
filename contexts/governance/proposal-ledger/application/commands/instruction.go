package commands

import (
	"context"

	domainerrors "govledger/contexts/governance/proposal-ledger/domain/errors"
)

// Instruction is one of the three ledger operations. The set is closed:
// only CreateProposalCommand, VoteCommand and CloseProposalCommand satisfy it.
type Instruction interface {
	instruction()
	// Signer is the verified caller the instruction runs on behalf of.
	Signer() string
}

func (CreateProposalCommand) instruction() {}
func (VoteCommand) instruction()           {}
func (CloseProposalCommand) instruction()  {}

func (c CreateProposalCommand) Signer() string { return c.AuthorID }
func (c VoteCommand) Signer() string           { return c.VoterID }
func (c CloseProposalCommand) Signer() string  { return c.CallerID }

// InstructionResult holds exactly one populated result matching the
// executed instruction.
type InstructionResult struct {
	Create *CreateProposalResult
	Vote   *VoteResult
	Close  *CloseProposalResult
}

// Execute dispatches one instruction to its handler.
func (uc ProposalUseCase) Execute(ctx context.Context, ix Instruction) (InstructionResult, error) {
	switch cmd := ix.(type) {
	case CreateProposalCommand:
		result, err := uc.CreateProposal(ctx, cmd)
		if err != nil {
			return InstructionResult{}, err
		}
		return InstructionResult{Create: &result}, nil
	case VoteCommand:
		result, err := uc.VoteOnProposal(ctx, cmd)
		if err != nil {
			return InstructionResult{}, err
		}
		return InstructionResult{Vote: &result}, nil
	case CloseProposalCommand:
		result, err := uc.CloseProposal(ctx, cmd)
		if err != nil {
			return InstructionResult{}, err
		}
		return InstructionResult{Close: &result}, nil
	default:
		return InstructionResult{}, domainerrors.ErrInvalidInput
	}
}

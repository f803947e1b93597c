package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateProposalRequest struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	SubjectID      string    `json:"subject_id"`
	ExpirationTime time.Time `json:"expiration_time"`
}

type VoteRequest struct {
	Direction string `json:"direction"`
}

// InstructionRequest is the tagged instruction accepted by
// POST /v1/instructions. Op selects which of the remaining fields apply.
type InstructionRequest struct {
	Op             string     `json:"op"`
	ProposalID     string     `json:"proposal_id,omitempty"`
	Direction      string     `json:"direction,omitempty"`
	Title          string     `json:"title,omitempty"`
	Description    string     `json:"description,omitempty"`
	SubjectID      string     `json:"subject_id,omitempty"`
	ExpirationTime *time.Time `json:"expiration_time,omitempty"`
}

type BallotResponse struct {
	ProposalID string `json:"proposal_id"`
	VoterID    string `json:"voter_id"`
	Direction  string `json:"direction"`
	VotedYes   bool   `json:"voted_yes"`
	VotedNo    bool   `json:"voted_no"`
}

type ProposalResponse struct {
	ProposalID        string           `json:"proposal_id"`
	AuthorID          string           `json:"author_id"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	SubjectID         string           `json:"subject_id"`
	CreatedAt         time.Time        `json:"created_at"`
	ExpirationTime    time.Time        `json:"expiration_time"`
	Status            string           `json:"status"`
	YesVotes          uint32           `json:"yes_votes"`
	NoVotes           uint32           `json:"no_votes"`
	UniqueVoters      uint32           `json:"unique_voters"`
	Closed            bool             `json:"closed"`
	Outcome           string           `json:"outcome,omitempty"`
	Confidence        uint32           `json:"confidence"`
	YesPercentage     uint32           `json:"yes_percentage"`
	NoPercentage      uint32           `json:"no_percentage"`
	RemainingCapacity int              `json:"remaining_capacity"`
	Voters            []BallotResponse `json:"voters,omitempty"`
	Replayed          bool             `json:"replayed,omitempty"`
}

type VoteResponse struct {
	Proposal          ProposalResponse `json:"proposal"`
	BallotChange      string           `json:"ballot_change,omitempty"`
	Direction         string           `json:"direction"`
	PreviousDirection string           `json:"previous_direction,omitempty"`
	Confidence        uint32           `json:"confidence"`
	Replayed          bool             `json:"replayed"`
}

type CloseProposalResponse struct {
	Proposal ProposalResponse `json:"proposal"`
	Outcome  string           `json:"outcome"`
	Replayed bool             `json:"replayed"`
}

type ProposalListResponse struct {
	Items []ProposalResponse `json:"items"`
}

// InstructionResponse echoes the op and carries exactly one result.
type InstructionResponse struct {
	Op       string                 `json:"op"`
	Proposal *ProposalResponse      `json:"proposal,omitempty"`
	Vote     *VoteResponse          `json:"vote,omitempty"`
	Close    *CloseProposalResponse `json:"close,omitempty"`
}

package domain

import "time"

// Selection is the candidates a voter picked
type Selection struct {
	InstitutionID string   `json:"institutionId"`
	CandidateIDs  []string `json:"candidateIds"`
}

// VoteRecord is the off-chain record of an accepted vote. It carries the
// subject hash only for duplicate detection.
type VoteRecord struct {
	ID            string    `json:"id"`
	BallotID      string    `json:"ballotId"`
	InstitutionID string    `json:"institutionId"`
	CandidateIDs  []string  `json:"candidateIds"`
	VoteHash      string    `json:"voteHash"`
	TokenHash     string    `json:"tokenHash"`
	SubjectHash   string    `json:"-"`
	Receipt       string    `json:"receipt"`
	TxHash        string    `json:"txHash"`
	SBTTokenID    *string   `json:"sbtTokenId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CastVoteRequest is a ballot selection bound to a credential
type CastVoteRequest struct {
	BallotID         string    `json:"ballotId"`
	EligibilityToken string    `json:"eligibilityToken"`
	Selection        Selection `json:"selection"`
}

// CastVoteResult is returned once a vote is anchored and recorded
type CastVoteResult struct {
	Receipt    string  `json:"receipt"`
	TxHash     string  `json:"txHash"`
	SBTTokenID *string `json:"sbtTokenId"`
}

// UnknownBallot is reported when a receipt has no local record
const UnknownBallot = "unknown"

// ReceiptVerification reports where a receipt can be found. The two flags
// are not reconciled.
type ReceiptVerification struct {
	Receipt  string `json:"receipt"`
	BallotID string `json:"ballotId"`
	OnChain  bool   `json:"onChain"`
	OffChain bool   `json:"offChain"`
	TxHash   string `json:"txHash,omitempty"`
}

// SubjectVoteStatus tells whether a subject has any recorded vote
type SubjectVoteStatus struct {
	Subject  string `json:"subject"`
	HasVoted bool   `json:"hasVoted"`
}

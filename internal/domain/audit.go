package domain

import "time"

// Audit actions
const (
	AuditEligibilityIssued = "ELIGIBILITY_ISSUED"
	AuditVoteCast          = "VOTE_CAST"
	AuditBallotFinalized   = "BALLOT_FINALIZED"
)

// Audit actors
const (
	ActorIdentityService = "identity-service"
	ActorVotingService   = "voting-service"
	ActorTallyService    = "tally-service"
)

// AuditEvent is an append-only log entry. Metadata never holds raw subjects
// or secrets.
type AuditEvent struct {
	ID         string            `json:"id"`
	Actor      string            `json:"actor"`
	Action     string            `json:"action"`
	Metadata   map[string]string `json:"metadata"`
	OccurredAt time.Time         `json:"occurredAt"`
}

package domain

import "time"

// EligibilityStatus is the lifecycle state of a credential
type EligibilityStatus string

const (
	EligibilityActive   EligibilityStatus = "ACTIVE"
	EligibilityConsumed EligibilityStatus = "CONSUMED"
)

// VoterEligibility records a credential issued to a subject. Only digests of
// the subject and the secret are stored.
type VoterEligibility struct {
	ID            string            `json:"id"`
	SubjectHash   string            `json:"subjectHash"`
	IssuedAt      time.Time         `json:"issuedAt"`
	ExpiresAt     time.Time         `json:"expiresAt"`
	TokenHash     string            `json:"tokenHash"`
	WalletAddress string            `json:"walletAddress"`
	Status        EligibilityStatus `json:"status"`
	IssuedBy      string            `json:"issuedBy"`
}

// IsActive reports whether the credential can still be spent
func (e *VoterEligibility) IsActive() bool {
	return e.Status == EligibilityActive
}

// IssueRequest asks for a credential for the holder of an identity assertion
type IssueRequest struct {
	IdentityAssertion string `json:"idToken"`
	WalletAddress     string `json:"walletAddress"`
}

// IssuedCredential is returned to the voter's client
type IssuedCredential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DecodedCredential is the content of a presented credential
type DecodedCredential struct {
	RawSecret string
	Salt      []byte
	ExpiresAt time.Time
}

package domain

import (
	"strconv"
	"time"
)

// Ballot is a vote open to the members of one institution
type Ballot struct {
	ID                     string     `json:"id"`
	InstitutionID          string     `json:"institutionId"`
	Title                  string     `json:"title"`
	CandidateIDs           []string   `json:"candidateIds"`
	OpensAt                *time.Time `json:"opensAt,omitempty"`
	ClosesAt               *time.Time `json:"closesAt,omitempty"`
	AllowMultipleSelection bool       `json:"allowMultipleSelection"`
}

// IsOpen reports whether now falls in [OpensAt, ClosesAt). A nil bound is
// unbounded.
func (b *Ballot) IsOpen(now time.Time) bool {
	if b.OpensAt != nil && now.Before(*b.OpensAt) {
		return false
	}
	if b.ClosesAt != nil && !now.Before(*b.ClosesAt) {
		return false
	}
	return true
}

// HasCandidate reports whether candidateID is on the ballot
func (b *Ballot) HasCandidate(candidateID string) bool {
	for _, id := range b.CandidateIDs {
		if id == candidateID {
			return true
		}
	}
	return false
}

// NumericID returns the ballot id as the unsigned integer the ledger expects
func (b *Ballot) NumericID() (uint64, error) {
	return strconv.ParseUint(b.ID, 10, 64)
}

// BallotView is a ballot as exposed to clients
type BallotView struct {
	Ballot
	IsOpen bool `json:"isOpen"`
}

// BallotDetail is a ballot with its institution and candidates
type BallotDetail struct {
	BallotView
	Institution *Institution `json:"institution,omitempty"`
	Candidates  []Candidate  `json:"candidates"`
}

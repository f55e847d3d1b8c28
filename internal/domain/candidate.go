package domain

import "time"

// Candidate is a person or list that can be selected on a ballot
type Candidate struct {
	ID            string    `json:"id"`
	InstitutionID string    `json:"institutionId"`
	DisplayName   string    `json:"displayName"`
	ListName      string    `json:"listName"`
	Biography     string    `json:"biography"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Institution owns ballots and candidates
type Institution struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

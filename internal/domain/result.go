package domain

import "time"

// TallyEntry is the count for one ballot candidate
type TallyEntry struct {
	CandidateID   string `json:"candidateId"`
	Votes         int64  `json:"votes"`
	DisplayName   string `json:"displayName,omitempty"`
	ListName      string `json:"listName,omitempty"`
	InstitutionID string `json:"institutionId,omitempty"`
}

// Tally is a live, recomputable count in ballot candidate order
type Tally struct {
	BallotID   string       `json:"ballotId"`
	Entries    []TallyEntry `json:"entries"`
	ComputedAt time.Time    `json:"computedAt"`
}

// Counts returns the tally as a candidate id to votes map
func (t *Tally) Counts() map[string]int64 {
	counts := make(map[string]int64, len(t.Entries))
	for _, e := range t.Entries {
		counts[e.CandidateID] = e.Votes
	}
	return counts
}

// BallotResult is the immutable snapshot written when a ballot is finalized
type BallotResult struct {
	ID             string           `json:"id"`
	BallotID       string           `json:"ballotId"`
	InstitutionID  string           `json:"institutionId"`
	CandidateVotes map[string]int64 `json:"candidateVotes"`
	ComputedAt     time.Time        `json:"computedAt"`
	Checksum       string           `json:"checksum"`
}

// BallotResultView is a final result as served to clients: the stored
// snapshot plus its counts in ballot order with candidate names
type BallotResultView struct {
	ResultID       string           `json:"resultId"`
	BallotID       string           `json:"ballotId"`
	InstitutionID  string           `json:"institutionId"`
	Entries        []TallyEntry     `json:"entries"`
	CandidateVotes map[string]int64 `json:"candidateVotes"`
	ComputedAt     time.Time        `json:"computedAt"`
	Checksum       string           `json:"checksum"`
	FinalResult    bool             `json:"finalResult"`
}

// ResultVerification reports whether a stored snapshot still matches its
// checksum
type ResultVerification struct {
	BallotID         string `json:"ballotId"`
	StoredChecksum   string `json:"storedChecksum"`
	ComputedChecksum string `json:"computedChecksum"`
	Valid            bool   `json:"valid"`
}

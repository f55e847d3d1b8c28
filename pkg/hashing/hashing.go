package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// DigestLength is the length of every hex digest produced by a Hasher
const DigestLength = sha256.Size * 2

// Encoding tags prefix the canonical encodings so a format change never
// collides with digests produced by an older version.
const (
	voteEncodingTag  = "vote/v1"
	tallyEncodingTag = "tally/v1"
)

// VotePayload is the content of a vote that gets fingerprinted
type VotePayload struct {
	InstitutionID string   `json:"institutionId"`
	CandidateIDs  []string `json:"candidateIds"`
}

type tallyEntry struct {
	CandidateID string `json:"candidateId"`
	Votes       int64  `json:"votes"`
}

type tallyDocument struct {
	BallotID   string       `json:"ballotId"`
	ComputedAt int64        `json:"computedAt"`
	Entries    []tallyEntry `json:"entries"`
}

// Hasher produces the peppered digests used to de-identify subjects,
// credentials and vote content
type Hasher struct {
	subjectPepper string
	tokenPepper   string
}

// New creates a Hasher. Both peppers are required.
func New(subjectPepper, tokenPepper string) (*Hasher, error) {
	if subjectPepper == "" {
		return nil, errors.New("subject pepper is required")
	}
	if tokenPepper == "" {
		return nil, errors.New("token pepper is required")
	}
	return &Hasher{subjectPepper: subjectPepper, tokenPepper: tokenPepper}, nil
}

// HashSubject returns the digest of subject ‖ subjectPepper
func (h *Hasher) HashSubject(subject string) string {
	return Sum([]byte(subject + h.subjectPepper))
}

// HashToken returns the digest of (rawSecret ‖ tokenPepper) ‖ salt
func (h *Hasher) HashToken(rawSecret string, salt []byte) string {
	combined := []byte(rawSecret + h.tokenPepper)
	salted := make([]byte, 0, len(combined)+len(salt))
	salted = append(salted, combined...)
	salted = append(salted, salt...)
	return Sum(salted)
}

// HashVotePayload fingerprints a canonical selection for a ballot
func (h *Hasher) HashVotePayload(ballotID string, payload VotePayload) (string, error) {
	if payload.CandidateIDs == nil {
		payload.CandidateIDs = []string{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode vote payload: %w", err)
	}
	material := make([]byte, 0, len(voteEncodingTag)+len(ballotID)+len(body)+2)
	material = append(material, voteEncodingTag...)
	material = append(material, '\n')
	material = append(material, ballotID...)
	material = append(material, '\n')
	material = append(material, body...)
	return Sum(material), nil
}

// DeriveReceipt returns the client-verifiable proof id of a vote
func (h *Hasher) DeriveReceipt(ballotID, voteHash string, timestamp time.Time) string {
	material := ballotID + ":" + voteHash + ":" + strconv.FormatInt(timestamp.UnixMilli(), 10)
	return Sum([]byte(material))
}

// HashTally returns the checksum of a ballot's counts. Map iteration order
// does not affect the result.
func (h *Hasher) HashTally(ballotID string, counts map[string]int64, computedAt time.Time) (string, error) {
	entries := make([]tallyEntry, 0, len(counts))
	for candidateID, votes := range counts {
		entries = append(entries, tallyEntry{CandidateID: candidateID, Votes: votes})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CandidateID < entries[j].CandidateID
	})

	body, err := json.Marshal(tallyDocument{
		BallotID:   ballotID,
		ComputedAt: computedAt.UnixMilli(),
		Entries:    entries,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode tally: %w", err)
	}
	material := make([]byte, 0, len(tallyEncodingTag)+len(body)+1)
	material = append(material, tallyEncodingTag...)
	material = append(material, '\n')
	material = append(material, body...)
	return Sum(material), nil
}

// Sum returns the lowercase hex SHA-256 of data
func Sum(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

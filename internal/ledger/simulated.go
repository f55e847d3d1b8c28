package ledger

import (
	"context"
	"encoding/binary"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

type simulatedToken struct {
	wallet     string
	consumed   bool
	sbtTokenID uint64
}

// Simulated is an in-memory ledger with one-shot issue and spend semantics.
// Every instance has its own state.
type Simulated struct {
	mu          sync.Mutex
	tokens      map[string]*simulatedToken
	receipts    map[string]uint64 // receipt -> sbt token id
	sbtSequence uint64
	txSequence  uint64
}

// NewSimulated creates an empty simulated ledger
func NewSimulated() *Simulated {
	return &Simulated{
		tokens:      make(map[string]*simulatedToken),
		receipts:    make(map[string]uint64),
		sbtSequence: 1,
	}
}

func (s *Simulated) IssueToken(_ context.Context, tokenHash, wallet string) (*TxReceipt, error) {
	token, err := normalizeHex(tokenHash)
	if err != nil {
		return nil, err
	}
	if _, err := toBytes32(token); err != nil {
		return nil, err
	}
	addr, err := toAddress(wallet)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token]; exists {
		return nil, ErrTokenAlreadyIssued
	}
	s.tokens[token] = &simulatedToken{wallet: addr.Hex()}

	return s.nextReceipt("issueToken", token), nil
}

func (s *Simulated) CastVote(_ context.Context, ballotID uint64, tokenHash, voteHash, receipt string) (*TxReceipt, error) {
	token, err := normalizeHex(tokenHash)
	if err != nil {
		return nil, err
	}
	normalizedReceipt, err := normalizeHex(receipt)
	if err != nil {
		return nil, err
	}
	if _, err := toBytes32(voteHash); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.tokens[token]
	if !ok {
		return nil, ErrTokenNotIssued
	}
	if state.consumed {
		return nil, ErrTokenAlreadyUsed
	}

	state.consumed = true
	if state.sbtTokenID == 0 {
		state.sbtTokenID = s.sbtSequence
		s.sbtSequence++
	}
	s.receipts[normalizedReceipt] = state.sbtTokenID

	return s.nextReceipt("castVote", strconv.FormatUint(ballotID, 10), token, normalizedReceipt), nil
}

func (s *Simulated) IsReceiptRegistered(_ context.Context, receipt string) (bool, error) {
	normalized, err := normalizeHex(receipt)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.receipts[normalized]
	return ok, nil
}

func (s *Simulated) ExtractSBTTokenID(_ *TxReceipt, receiptHash string) (string, bool) {
	normalized, err := normalizeHex(receiptHash)
	if err != nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.receipts[normalized]
	if !ok {
		return "", false
	}
	return strconv.FormatUint(id, 10), true
}

// nextReceipt fabricates a transaction hash from the call and a sequence
// number. Callers hold s.mu.
func (s *Simulated) nextReceipt(method string, parts ...string) *TxReceipt {
	s.txSequence++

	seq := make([]byte, 8)
	binary.BigEndian.PutUint64(seq, s.txSequence)

	data := [][]byte{[]byte(method), seq}
	for _, p := range parts {
		data = append(data, []byte(p))
	}

	return &TxReceipt{
		TxHash:      crypto.Keccak256Hash(data...).Hex(),
		BlockNumber: s.txSequence,
	}
}

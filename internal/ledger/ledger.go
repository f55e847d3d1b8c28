// Package ledger anchors credentials and votes on an EVM ledger. It offers a
// live backend talking JSON-RPC and an in-memory simulation with the same
// one-shot issue and spend semantics.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrTokenAlreadyIssued = errors.New("token hash already issued")
	ErrTokenNotIssued     = errors.New("token hash not issued")
	ErrTokenAlreadyUsed   = errors.New("token already used")
	ErrRejected           = errors.New("transaction rejected by ledger")
	ErrReceiptTimeout     = errors.New("timed out waiting for transaction receipt")
	ErrUnavailable        = errors.New("ledger temporarily unavailable")
	ErrInvalidInput       = errors.New("invalid ledger input")
)

// TxReceipt is the outcome of a mined transaction
type TxReceipt struct {
	TxHash      string
	BlockNumber uint64
	Logs        []*types.Log
}

// Ledger is a synchronous ledger backend
type Ledger interface {
	// IssueToken registers tokenHash against wallet. Issuing the same hash
	// twice fails with ErrTokenAlreadyIssued.
	IssueToken(ctx context.Context, tokenHash, wallet string) (*TxReceipt, error)

	// CastVote spends an issued token. It fails with ErrTokenNotIssued or
	// ErrTokenAlreadyUsed.
	CastVote(ctx context.Context, ballotID uint64, tokenHash, voteHash, receipt string) (*TxReceipt, error)

	// IsReceiptRegistered scans emitted VoteCast events for receipt
	IsReceiptRegistered(ctx context.Context, receipt string) (bool, error)

	// ExtractSBTTokenID returns the membership token id minted by the vote
	// whose receipt value is receiptHash
	ExtractSBTTokenID(tx *TxReceipt, receiptHash string) (string, bool)
}

// normalizeHex lowercases a hex string and adds the 0x prefix
func normalizeHex(value string) (string, error) {
	cleaned := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(value), "0x"), "0X")
	if cleaned == "" {
		return "", fmt.Errorf("%w: hex value required", ErrInvalidInput)
	}
	return "0x" + strings.ToLower(cleaned), nil
}

// toBytes32 decodes a hex digest, left-padding values shorter than 32 bytes
func toBytes32(value string) ([32]byte, error) {
	var out [32]byte

	normalized, err := normalizeHex(value)
	if err != nil {
		return out, err
	}
	if len(normalized)%2 == 1 {
		normalized = "0x0" + normalized[2:]
	}
	raw, err := hexutil.Decode(normalized)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(raw) > 32 {
		return out, fmt.Errorf("%w: value exceeds 32 bytes", ErrInvalidInput)
	}
	copy(out[32-len(raw):], raw)
	return out, nil
}

// toAddress validates and parses a wallet address
func toAddress(value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: address must have 20 bytes", ErrInvalidInput)
	}
	return common.HexToAddress(value), nil
}

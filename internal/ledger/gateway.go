package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Submission is a ledger call running in the background
type Submission struct {
	done    chan struct{}
	receipt *TxReceipt
	err     error
}

func submit(ctx context.Context, fn func(context.Context) (*TxReceipt, error)) *Submission {
	s := &Submission{done: make(chan struct{})}
	go func() {
		defer close(s.done)
		s.receipt, s.err = fn(ctx)
	}()
	return s
}

// Wait blocks until the submission resolves or ctx ends
func (s *Submission) Wait(ctx context.Context) (*TxReceipt, error) {
	select {
	case <-s.done:
		return s.receipt, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the submission resolved
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Gateway is the only way the rest of the system talks to the ledger. It
// runs state-mutating calls asynchronously and retries transient failures.
type Gateway struct {
	ledger Ledger
	policy RetryPolicy
	log    *zap.Logger
}

// NewGateway wraps a ledger backend
func NewGateway(ledger Ledger, policy RetryPolicy, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{ledger: ledger, policy: policy, log: log}
}

// IssueToken registers a credential digest against a wallet
func (g *Gateway) IssueToken(ctx context.Context, tokenHash, wallet string) *Submission {
	return submit(ctx, func(ctx context.Context) (*TxReceipt, error) {
		start := time.Now()
		receipt, err := withRetry(ctx, g.policy, g.log, "issueToken", func(ctx context.Context) (*TxReceipt, error) {
			return g.ledger.IssueToken(ctx, tokenHash, wallet)
		})
		g.observe("issueToken", start, receipt, err)
		return receipt, err
	})
}

// CastVote spends an issued credential
func (g *Gateway) CastVote(ctx context.Context, ballotID uint64, tokenHash, voteHash, receipt string) *Submission {
	return submit(ctx, func(ctx context.Context) (*TxReceipt, error) {
		start := time.Now()
		tx, err := withRetry(ctx, g.policy, g.log, "castVote", func(ctx context.Context) (*TxReceipt, error) {
			return g.ledger.CastVote(ctx, ballotID, tokenHash, voteHash, receipt)
		})
		g.observe("castVote", start, tx, err)
		return tx, err
	})
}

// IsReceiptRegistered checks the ledger's event log for a receipt
func (g *Gateway) IsReceiptRegistered(ctx context.Context, receipt string) (bool, error) {
	return g.ledger.IsReceiptRegistered(ctx, receipt)
}

// ExtractSBTTokenID decodes the membership token id from a vote transaction
func (g *Gateway) ExtractSBTTokenID(tx *TxReceipt, receiptHash string) (string, bool) {
	if tx == nil {
		return "", false
	}
	return g.ledger.ExtractSBTTokenID(tx, receiptHash)
}

func (g *Gateway) observe(op string, start time.Time, tx *TxReceipt, err error) {
	if err != nil {
		g.log.Warn("ledger submission failed",
			zap.String("op", op),
			zap.Duration("duration", time.Since(start)),
			zap.Bool("transient", IsTransient(err)),
			zap.Error(err))
		return
	}
	g.log.Info("ledger submission confirmed",
		zap.String("op", op),
		zap.String("tx_hash", tx.TxHash),
		zap.Duration("duration", time.Since(start)))
}

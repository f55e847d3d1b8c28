package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyLedger fails the first n mutating calls with err before delegating
type flakyLedger struct {
	*Simulated
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	block    chan struct{}
}

func (f *flakyLedger) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	return nil
}

func (f *flakyLedger) IssueToken(ctx context.Context, tokenHash, wallet string) (*TxReceipt, error) {
	if f.block != nil {
		<-f.block
	}
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Simulated.IssueToken(ctx, tokenHash, wallet)
}

func (f *flakyLedger) CastVote(ctx context.Context, ballotID uint64, tokenHash, voteHash, receipt string) (*TxReceipt, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Simulated.CastVote(ctx, ballotID, tokenHash, voteHash, receipt)
}

func TestGateway_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	backend := &flakyLedger{Simulated: NewSimulated(), failures: 2, err: ErrUnavailable}
	gw := NewGateway(backend, fastPolicy(), zap.NewNop())

	tx, err := gw.IssueToken(ctx, testToken, testWallet).Wait(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tx.TxHash)
	assert.Equal(t, 3, backend.calls)
}

func TestGateway_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	backend := &flakyLedger{Simulated: NewSimulated(), failures: 5, err: ErrUnavailable}
	gw := NewGateway(backend, fastPolicy(), zap.NewNop())

	_, err := gw.IssueToken(ctx, testToken, testWallet).Wait(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, backend.calls)
}

func TestGateway_BusinessFailuresReturnImmediately(t *testing.T) {
	ctx := context.Background()
	backend := &flakyLedger{Simulated: NewSimulated()}
	gw := NewGateway(backend, fastPolicy(), zap.NewNop())

	_, err := gw.CastVote(ctx, 1, testToken, testVote, testReceipt).Wait(ctx)
	assert.ErrorIs(t, err, ErrTokenNotIssued)
	assert.Equal(t, 1, backend.calls)

	_, err = gw.IssueToken(ctx, testToken, testWallet).Wait(ctx)
	require.NoError(t, err)

	tx, err := gw.CastVote(ctx, 1, testToken, testVote, testReceipt).Wait(ctx)
	require.NoError(t, err)

	id, ok := gw.ExtractSBTTokenID(tx, testReceipt)
	assert.True(t, ok)
	assert.Equal(t, "1", id)

	_, ok = gw.ExtractSBTTokenID(nil, testReceipt)
	assert.False(t, ok)

	registered, err := gw.IsReceiptRegistered(ctx, testReceipt)
	require.NoError(t, err)
	assert.True(t, registered)

	_, err = gw.CastVote(ctx, 1, testToken, testVote, testReceipt).Wait(ctx)
	assert.ErrorIs(t, err, ErrTokenAlreadyUsed)
}

func TestSubmission_WaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	backend := &flakyLedger{Simulated: NewSimulated(), block: block}
	gw := NewGateway(backend, fastPolicy(), zap.NewNop())

	sub := gw.IssueToken(context.Background(), testToken, testWallet)

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := sub.Wait(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	<-sub.Done()
	tx, err := sub.Wait(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, tx.TxHash)
}

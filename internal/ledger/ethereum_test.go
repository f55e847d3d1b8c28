package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testContract = "0x00000000000000000000000000000000000000c0"

// fakeChain mines every accepted transaction instantly and emits VoteCast
// logs for castVote calls
type fakeChain struct {
	t        *testing.T
	contract abi.ABI
	chainID  *big.Int

	mu          sync.Mutex
	nonce       uint64
	sent        []*types.Transaction
	receipts    map[common.Hash]*types.Receipt
	logs        []types.Log
	callErr     error
	status      uint64
	pendingPoll int
	neverMine   bool
	sbtSequence int64
	sendCalls   int
	sendErr     error
	sendLost    bool
}

func newFakeChain(t *testing.T) *fakeChain {
	contract, err := parseVoteContractABI()
	require.NoError(t, err)
	return &fakeChain{
		t:           t,
		contract:    contract,
		chainID:     big.NewInt(1337),
		receipts:    make(map[common.Hash]*types.Receipt),
		status:      types.ReceiptStatusSuccessful,
		sbtSequence: 7,
	}
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeChain) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, f.callErr
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sendCalls++
	if f.sendLost {
		return f.sendErr
	}

	f.nonce++
	f.sent = append(f.sent, tx)
	if f.neverMine {
		return f.sendErr
	}

	receipt := &types.Receipt{Status: f.status, BlockNumber: big.NewInt(int64(len(f.sent)))}
	castVote := f.contract.Methods["castVote"]
	if bytes.Equal(tx.Data()[:4], castVote.ID) && f.status == types.ReceiptStatusSuccessful {
		args, err := castVote.Inputs.Unpack(tx.Data()[4:])
		require.NoError(f.t, err)

		event := f.contract.Events[voteCastEvent]
		data, err := event.Inputs.NonIndexed().Pack(args[2].([32]byte), args[3].([32]byte), big.NewInt(f.sbtSequence))
		require.NoError(f.t, err)
		f.sbtSequence++

		l := types.Log{
			Address: common.HexToAddress(testContract),
			Topics: []common.Hash{
				event.ID,
				common.BigToHash(args[0].(*big.Int)),
				common.Hash(args[1].([32]byte)),
				common.BytesToHash(common.HexToAddress(testWallet).Bytes()),
			},
			Data:   data,
			TxHash: tx.Hash(),
		}
		f.logs = append(f.logs, l)
		receipt.Logs = []*types.Log{&l}
	}
	f.receipts[tx.Hash()] = receipt
	return f.sendErr
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pendingPoll > 0 {
		f.pendingPoll--
		return nil, ethereum.NotFound
	}
	receipt, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (f *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Log(nil), f.logs...), nil
}

func (f *fakeChain) Close() {}

func newTestEthereum(t *testing.T, chain *fakeChain, chainID int64) *Ethereum {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	eth, err := newEthereum(context.Background(), chain, EthereumConfig{
		ContractAddress: testContract,
		PrivateKeyHex:   hex.EncodeToString(crypto.FromECDSA(key)),
		ChainID:         chainID,
		GasPriceWei:     DefaultGasPriceWei,
		PollInterval:    time.Millisecond,
		PollAttempts:    3,
	}, zap.NewNop())
	require.NoError(t, err)
	return eth
}

func TestNewEthereum_Validation(t *testing.T) {
	chain := newFakeChain(t)

	_, err := newEthereum(context.Background(), chain, EthereumConfig{ContractAddress: "nope", PrivateKeyHex: "00"}, nil)
	assert.Error(t, err)

	_, err = newEthereum(context.Background(), chain, EthereumConfig{ContractAddress: testContract, PrivateKeyHex: "zz"}, nil)
	assert.Error(t, err)

	_, err = NewEthereum(context.Background(), EthereumConfig{}, nil)
	assert.Error(t, err)
}

func TestEthereum_IssueToken(t *testing.T) {
	chain := newFakeChain(t)
	eth := newTestEthereum(t, chain, 0)
	assert.Equal(t, int64(1337), eth.chainID.Int64(), "chain id is read from the node when not configured")

	tx, err := eth.IssueToken(context.Background(), testToken, testWallet)
	require.NoError(t, err)

	require.Len(t, chain.sent, 1)
	sent := chain.sent[0]
	assert.Equal(t, sent.Hash().Hex(), tx.TxHash)
	assert.Equal(t, common.HexToAddress(testContract), *sent.To())
	assert.Equal(t, uint64(DefaultGasLimit), sent.Gas())
	assert.Equal(t, big.NewInt(DefaultGasPriceWei), sent.GasPrice())
	assert.Equal(t, eth.contract.Methods["issueToken"].ID, sent.Data()[:4])

	sender, err := types.Sender(types.LatestSignerForChainID(chain.chainID), sent)
	require.NoError(t, err)
	assert.Equal(t, eth.from, sender)

	_, err = eth.IssueToken(context.Background(), stringsRepeat("4", 64), testWallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), chain.sent[1].Nonce())
}

func TestEthereum_CastVoteAndVerify(t *testing.T) {
	chain := newFakeChain(t)
	chain.pendingPoll = 2
	eth := newTestEthereum(t, chain, 1337)
	ctx := context.Background()

	tx, err := eth.CastVote(ctx, 42, testToken, testVote, testReceipt)
	require.NoError(t, err)
	require.Len(t, tx.Logs, 1)

	id, ok := eth.ExtractSBTTokenID(tx, testReceipt)
	require.True(t, ok)
	assert.Equal(t, "7", id)

	_, ok = eth.ExtractSBTTokenID(tx, stringsRepeat("9", 64))
	assert.False(t, ok)

	registered, err := eth.IsReceiptRegistered(ctx, "0x"+testReceipt)
	require.NoError(t, err)
	assert.True(t, registered)

	registered, err = eth.IsReceiptRegistered(ctx, stringsRepeat("9", 64))
	require.NoError(t, err)
	assert.False(t, registered)
}

func TestEthereum_PreflightRevert(t *testing.T) {
	chain := newFakeChain(t)
	chain.callErr = errors.New("execution reverted: token already used")
	eth := newTestEthereum(t, chain, 1337)

	_, err := eth.CastVote(context.Background(), 1, testToken, testVote, testReceipt)
	assert.ErrorIs(t, err, ErrRejected)
	assert.False(t, IsTransient(err))
	assert.Empty(t, chain.sent)
}

func TestEthereum_FailedStatus(t *testing.T) {
	chain := newFakeChain(t)
	chain.status = types.ReceiptStatusFailed
	eth := newTestEthereum(t, chain, 1337)

	_, err := eth.IssueToken(context.Background(), testToken, testWallet)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestEthereum_ReceiptTimeout(t *testing.T) {
	chain := newFakeChain(t)
	chain.neverMine = true
	eth := newTestEthereum(t, chain, 1337)

	_, err := eth.IssueToken(context.Background(), testToken, testWallet)
	assert.ErrorIs(t, err, ErrReceiptTimeout)
	assert.True(t, IsRetryable(err))
}

func TestEthereum_SendOutcomeUnknown(t *testing.T) {
	connReset := &net.OpError{Op: "write", Net: "tcp", Err: syscall.ECONNRESET}

	t.Run("accepted before the connection dropped", func(t *testing.T) {
		chain := newFakeChain(t)
		chain.sendErr = connReset
		gw := NewGateway(newTestEthereum(t, chain, 1337), fastPolicy(), zap.NewNop())

		tx, err := gw.CastVote(context.Background(), 1, testToken, testVote, testReceipt).Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, chain.sent[0].Hash().Hex(), tx.TxHash)
		assert.Equal(t, 1, chain.sendCalls)
		assert.Len(t, chain.sent, 1)
	})

	t.Run("never reached the node", func(t *testing.T) {
		chain := newFakeChain(t)
		chain.sendErr = connReset
		chain.sendLost = true
		gw := NewGateway(newTestEthereum(t, chain, 1337), fastPolicy(), zap.NewNop())

		_, err := gw.CastVote(context.Background(), 1, testToken, testVote, testReceipt).Wait(context.Background())
		assert.ErrorIs(t, err, ErrReceiptTimeout)
		assert.True(t, IsRetryable(err))
		assert.Equal(t, 1, chain.sendCalls)
	})

	t.Run("rejected by the node", func(t *testing.T) {
		chain := newFakeChain(t)
		chain.sendErr = errors.New("insufficient funds for gas * price + value")
		chain.sendLost = true
		eth := newTestEthereum(t, chain, 1337)

		_, err := eth.IssueToken(context.Background(), testToken, testWallet)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrReceiptTimeout)
		assert.Contains(t, err.Error(), "insufficient funds")
	})
}

func TestEthereum_InvalidInput(t *testing.T) {
	eth := newTestEthereum(t, newFakeChain(t), 1337)

	_, err := eth.IssueToken(context.Background(), testToken, "0x123")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = eth.CastVote(context.Background(), 1, "xyz", testVote, testReceipt)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func stringsRepeat(s string, n int) string {
	return string(bytes.Repeat([]byte(s), n))
}

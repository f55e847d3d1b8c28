package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Defaults for the live backend
const (
	DefaultGasPriceWei  = 20_000_000_000
	DefaultGasLimit     = 6_721_975
	DefaultPollInterval = 2 * time.Second
	DefaultPollAttempts = 15
)

// EthereumConfig configures the live backend
type EthereumConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKeyHex   string
	ChainID         int64 // zero asks the node
	GasPriceWei     int64 // zero asks the node
	GasLimit        uint64
	PollInterval    time.Duration
	PollAttempts    int
	FromBlock       uint64
}

// chainBackend is the part of ethclient.Client the backend uses
type chainBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	Close()
}

// Ethereum submits signed transactions to the voting contract
type Ethereum struct {
	backend  chainBackend
	contract abi.ABI
	address  common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	cfg      EthereumConfig
	log      *zap.Logger

	// sendMu serializes nonce allocation for the signing account
	sendMu sync.Mutex
}

// NewEthereum dials the node and prepares the signer
func NewEthereum(ctx context.Context, cfg EthereumConfig, log *zap.Logger) (*Ethereum, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("ledger RPC URL is required")
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger node: %w", err)
	}

	eth, err := newEthereum(ctx, client, cfg, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	return eth, nil
}

func newEthereum(ctx context.Context, backend chainBackend, cfg EthereumConfig, log *zap.Logger) (*Ethereum, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid ledger private key: %w", err)
	}

	contract, err := parseVoteContractABI()
	if err != nil {
		return nil, err
	}

	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = DefaultPollAttempts
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = backend.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read chain id: %w", err)
		}
	}

	e := &Ethereum{
		backend:  backend,
		contract: contract,
		address:  common.HexToAddress(cfg.ContractAddress),
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		cfg:      cfg,
		log:      log,
	}

	log.Info("ledger backend ready",
		zap.String("contract", e.address.Hex()),
		zap.String("sender", e.from.Hex()),
		zap.String("chain_id", chainID.String()))

	return e, nil
}

// Close releases the RPC connection
func (e *Ethereum) Close() {
	e.backend.Close()
}

func (e *Ethereum) IssueToken(ctx context.Context, tokenHash, wallet string) (*TxReceipt, error) {
	token, err := toBytes32(tokenHash)
	if err != nil {
		return nil, err
	}
	addr, err := toAddress(wallet)
	if err != nil {
		return nil, err
	}

	data, err := e.contract.Pack("issueToken", token, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return e.transact(ctx, "issueToken", data)
}

func (e *Ethereum) CastVote(ctx context.Context, ballotID uint64, tokenHash, voteHash, receipt string) (*TxReceipt, error) {
	token, err := toBytes32(tokenHash)
	if err != nil {
		return nil, err
	}
	vote, err := toBytes32(voteHash)
	if err != nil {
		return nil, err
	}
	rcpt, err := toBytes32(receipt)
	if err != nil {
		return nil, err
	}

	data, err := e.contract.Pack("castVote", new(big.Int).SetUint64(ballotID), token, vote, rcpt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return e.transact(ctx, "castVote", data)
}

// transact pre-flights, signs, sends and waits for the receipt
func (e *Ethereum) transact(ctx context.Context, method string, data []byte) (*TxReceipt, error) {
	gasPrice, err := e.gasPrice(ctx)
	if err != nil {
		return nil, err
	}

	call := ethereum.CallMsg{
		From:     e.from,
		To:       &e.address,
		Gas:      e.cfg.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	}
	if _, err := e.backend.CallContract(ctx, call, nil); err != nil {
		if IsTransient(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrRejected, method, err)
	}

	signed, err := e.send(ctx, data, gasPrice)
	if err != nil {
		if signed == nil || !IsTransient(err) {
			return nil, err
		}
		// the node may have accepted the tx before the connection failed;
		// a resend would spend a second nonce and revert
		e.log.Warn("ledger send outcome unknown, polling for receipt",
			zap.String("method", method),
			zap.String("tx_hash", signed.Hash().Hex()),
			zap.Error(err))
		return e.waitMined(ctx, signed.Hash())
	}

	e.log.Debug("ledger transaction sent",
		zap.String("method", method),
		zap.String("tx_hash", signed.Hash().Hex()))

	return e.waitMined(ctx, signed.Hash())
}

func (e *Ethereum) send(ctx context.Context, data []byte, gasPrice *big.Int) (*types.Transaction, error) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	nonce, err := e.backend.PendingNonceAt(ctx, e.from)
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &e.address,
		Value:    big.NewInt(0),
		Gas:      e.cfg.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		return signed, fmt.Errorf("failed to send transaction: %w", err)
	}
	return signed, nil
}

func (e *Ethereum) gasPrice(ctx context.Context) (*big.Int, error) {
	if e.cfg.GasPriceWei > 0 {
		return big.NewInt(e.cfg.GasPriceWei), nil
	}
	price, err := e.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read gas price: %w", err)
	}
	return price, nil
}

// waitMined polls for the receipt at a fixed interval
func (e *Ethereum) waitMined(ctx context.Context, hash common.Hash) (*TxReceipt, error) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < e.cfg.PollAttempts; attempt++ {
		receipt, err := e.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, fmt.Errorf("%w: transaction %s reverted", ErrRejected, hash.Hex())
			}
			return toTxReceipt(hash, receipt), nil
		case errors.Is(err, ethereum.NotFound), IsTransient(err):
			// not mined yet
		default:
			return nil, fmt.Errorf("failed to fetch receipt for %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
}

func toTxReceipt(hash common.Hash, receipt *types.Receipt) *TxReceipt {
	out := &TxReceipt{TxHash: hash.Hex(), Logs: receipt.Logs}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return out
}

func (e *Ethereum) IsReceiptRegistered(ctx context.Context, receipt string) (bool, error) {
	want, err := toBytes32(receipt)
	if err != nil {
		return false, err
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(e.cfg.FromBlock),
		Addresses: []common.Address{e.address},
		Topics:    [][]common.Hash{{e.contract.Events[voteCastEvent].ID}},
	}
	logs, err := e.backend.FilterLogs(ctx, query)
	if err != nil {
		return false, fmt.Errorf("failed to filter vote logs: %w", err)
	}

	for i := range logs {
		decoded, ok := e.decodeVoteCast(&logs[i])
		if ok && decoded.receipt == want {
			return true, nil
		}
	}
	return false, nil
}

func (e *Ethereum) ExtractSBTTokenID(tx *TxReceipt, receiptHash string) (string, bool) {
	want, err := toBytes32(receiptHash)
	if err != nil {
		return "", false
	}

	for _, l := range tx.Logs {
		decoded, ok := e.decodeVoteCast(l)
		if !ok || decoded.receipt != want {
			continue
		}
		return decoded.sbtTokenID.String(), true
	}
	return "", false
}

type voteCast struct {
	voteHash   [32]byte
	receipt    [32]byte
	sbtTokenID *big.Int
}

// decodeVoteCast decodes the non-indexed fields of a VoteCast log emitted by
// the contract
func (e *Ethereum) decodeVoteCast(l *types.Log) (voteCast, bool) {
	event := e.contract.Events[voteCastEvent]
	if l == nil || l.Address != e.address || len(l.Topics) == 0 || l.Topics[0] != event.ID {
		return voteCast{}, false
	}

	values, err := event.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil || len(values) != 3 {
		e.log.Debug("skipping undecodable VoteCast log",
			zap.String("tx_hash", l.TxHash.Hex()),
			zap.Error(err))
		return voteCast{}, false
	}

	voteHash, ok1 := values[0].([32]byte)
	receipt, ok2 := values[1].([32]byte)
	sbt, ok3 := values[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return voteCast{}, false
	}
	return voteCast{voteHash: voteHash, receipt: receipt, sbtTokenID: sbt}, true
}

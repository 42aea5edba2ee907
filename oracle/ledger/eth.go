package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

// DefaultRegistrationGas is the gas ceiling for registerOracle.
const DefaultRegistrationGas = 3000000

const liveBufferSize = 2 << 10

// Backend is what EthGateway needs from the node connection. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Signer hands out per-account transaction options.
type Signer interface {
	Transactor(addr common.Address, chainID *big.Int) (*bind.TransactOpts, error)
}

type EthGateway struct {
	backend  Backend
	address  common.Address
	contract *bind.BoundContract
	signer   Signer
	chainID  *big.Int

	registrationGas uint64

	// one sender lock per account so concurrent submissions do not reuse a nonce
	senders cmap.ConcurrentMap[string, *sync.Mutex]
	closer  func()
}

type Option func(*EthGateway)

func WithRegistrationGas(limit uint64) Option {
	return func(g *EthGateway) {
		if limit > 0 {
			g.registrationGas = limit
		}
	}
}

// Dial connects to endpoint (ws:// or wss:// for subscriptions) and binds the
// contract at address.
func Dial(ctx context.Context, endpoint string, address common.Address, signer Signer, opts ...Option) (*EthGateway, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrTransport, "failed to dial %s: %v", endpoint, err)
	}

	g, err := New(ctx, client, address, signer, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	g.closer = client.Close

	return g, nil
}

// New binds an existing backend.
func New(ctx context.Context, backend Backend, address common.Address, signer Signer, opts ...Option) (*EthGateway, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrTransport, "failed to get chain id: %v", err)
	}

	g := &EthGateway{
		backend:         backend,
		address:         address,
		contract:        bind.NewBoundContract(address, parsedABI, backend, backend, backend),
		signer:          signer,
		chainID:         chainID,
		registrationGas: DefaultRegistrationGas,
		senders:         cmap.New[*sync.Mutex](),
	}
	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *EthGateway) Close() {
	if g.closer != nil {
		g.closer()
	}
}

func (g *EthGateway) ChainID() *big.Int {
	return new(big.Int).Set(g.chainID)
}

func (g *EthGateway) BlockNumber(ctx context.Context) (uint64, error) {
	return g.backend.BlockNumber(ctx)
}

func (g *EthGateway) RegistrationFee(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodRegistrationFee); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", methodRegistrationFee, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected %s result length %d", methodRegistrationFee, len(out))
	}

	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (g *EthGateway) RegisterOracle(ctx context.Context, from common.Address, fee *big.Int) (common.Hash, error) {
	tx, err := g.transact(ctx, from, func(opts *bind.TransactOpts) {
		opts.Value = fee
		opts.GasLimit = g.registrationGas
	}, methodRegisterOracle)
	if err != nil {
		return common.Hash{}, wrapSendError(types.ErrRegistrationReverted, err)
	}

	if err := g.waitSuccess(ctx, tx, types.ErrRegistrationReverted); err != nil {
		return tx.Hash(), err
	}

	return tx.Hash(), nil
}

func (g *EthGateway) GetAssignedIndexes(ctx context.Context, account common.Address) ([]types.Index, error) {
	var out []interface{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx, From: account}, &out, methodGetMyIndexes); err != nil {
		return nil, fmt.Errorf("failed to call %s for %s: %w", methodGetMyIndexes, account.Hex(), err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected %s result length %d", methodGetMyIndexes, len(out))
	}

	raw := *abi.ConvertType(out[0], new([3]uint8)).(*[3]uint8)

	return types.ParseIndexes(raw[:])
}

func (g *EthGateway) SubmitResponse(ctx context.Context, resp Response, from common.Address, gasLimit uint64) (common.Hash, error) {
	tx, err := g.transact(ctx, from, func(opts *bind.TransactOpts) {
		opts.GasLimit = gasLimit
	}, methodSubmitResponse, uint8(resp.Index), resp.Airline, resp.Flight, resp.Timestamp, uint8(resp.Verdict))
	if err != nil {
		return common.Hash{}, wrapSendError(types.ErrSubmissionRejected, err)
	}

	if err := g.waitSuccess(ctx, tx, types.ErrSubmissionRejected); err != nil {
		return tx.Hash(), err
	}

	return tx.Hash(), nil
}

// SubscribeOracleRequests opens the live subscription first and then replays
// history up to the current head, so no log falls between the two. Logs in
// the overlap can be delivered twice.
func (g *EthGateway) SubscribeOracleRequests(ctx context.Context, fromBlock uint64) (Stream, error) {
	event := parsedABI.Events[EventOracleRequest]
	query := ethereum.FilterQuery{
		Addresses: []common.Address{g.address},
		Topics:    [][]common.Hash{{event.ID}},
	}

	live := make(chan ethtypes.Log, liveBufferSize)
	sub, err := g.backend.SubscribeFilterLogs(ctx, query, live)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrTransport, "failed to subscribe to %s: %v", EventOracleRequest, err)
	}

	head, err := g.backend.BlockNumber(ctx)
	if err != nil {
		sub.Unsubscribe()
		return nil, errorsmod.Wrapf(types.ErrTransport, "failed to get head block: %v", err)
	}

	var history []ethtypes.Log
	if fromBlock <= head {
		query.FromBlock = new(big.Int).SetUint64(fromBlock)
		query.ToBlock = new(big.Int).SetUint64(head)
		history, err = g.backend.FilterLogs(ctx, query)
		if err != nil {
			sub.Unsubscribe()
			return nil, errorsmod.Wrapf(types.ErrTransport, "failed to filter %s logs: %v", EventOracleRequest, err)
		}
	}
	log.Debugf("replaying %d %s logs from block %d to %d", len(history), EventOracleRequest, fromBlock, head)

	s := newLogStream(g.DecodeOracleRequest)
	go s.run(ctx, history, live, sub)

	return s, nil
}

// DecodeOracleRequest turns a contract log into a QueryEvent.
func (g *EthGateway) DecodeOracleRequest(l ethtypes.Log) (types.QueryEvent, error) {
	return decodeOracleRequest(g.contract, l)
}

func decodeOracleRequest(contract *bind.BoundContract, l ethtypes.Log) (types.QueryEvent, error) {
	var raw struct {
		Index     uint8
		Airline   common.Address
		Flight    string
		Timestamp *big.Int
	}
	if err := contract.UnpackLog(&raw, EventOracleRequest, l); err != nil {
		return types.QueryEvent{}, fmt.Errorf("failed to unpack %s log: %w", EventOracleRequest, err)
	}

	return types.QueryEvent{
		SelectorIndex: types.Index(raw.Index),
		Airline:       raw.Airline,
		Flight:        raw.Flight,
		Timestamp:     raw.Timestamp,
		BlockNumber:   l.BlockNumber,
		TxHash:        l.TxHash,
		LogIndex:      l.Index,
	}, nil
}

func (g *EthGateway) transact(ctx context.Context, from common.Address, tune func(*bind.TransactOpts), method string, params ...interface{}) (*ethtypes.Transaction, error) {
	opts, err := g.signer.Transactor(from, g.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	tune(opts)

	lock := g.senderLock(from)
	lock.Lock()
	defer lock.Unlock()

	return g.contract.Transact(opts, method, params...)
}

func (g *EthGateway) senderLock(from common.Address) *sync.Mutex {
	key := from.Hex()
	g.senders.SetIfAbsent(key, new(sync.Mutex))
	lock, _ := g.senders.Get(key)

	return lock
}

// waitSuccess waits for the receipt of a broadcast transaction. Once tx is
// in the pool every failure other than a revert is ErrReceiptUnknown: the
// transaction may still be mined, so it must not be signed again.
func (g *EthGateway) waitSuccess(ctx context.Context, tx *ethtypes.Transaction, rejected error) error {
	receipt, err := bind.WaitMined(ctx, g.backend, tx)
	if err != nil {
		return errorsmod.Wrapf(types.ErrReceiptUnknown, "tx %s: %v", tx.Hash().Hex(), err)
	}

	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return errorsmod.Wrapf(rejected, "tx %s reverted in block %s (gas used %d)",
			tx.Hash().Hex(), receipt.BlockNumber, receipt.GasUsed)
	}

	return nil
}

// wrapSendError tags errors the node returned as JSON-RPC errors with the
// rejection kind; anything else (dial, timeout, reset) stays a transport error.
func wrapSendError(rejected *errorsmod.Error, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return errorsmod.Wrapf(rejected, "code %d: %s", rpcErr.ErrorCode(), rpcErr.Error())
	}

	return err
}

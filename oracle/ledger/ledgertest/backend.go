package ledgertest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
)

var _ ledger.Backend = (*Backend)(nil)

// ChainID is the chain the fake backend reports.
var ChainID = big.NewInt(1337)

// Backend is a scripted node connection for ledger.EthGateway. Contract
// code is always present, gas prices are fixed and the chain is pre-London,
// so the gateway signs legacy transactions.
type Backend struct {
	mu sync.Mutex

	Head    uint64
	HeadErr error

	// Call answers eth_call; nil answers with empty output.
	Call func(msg ethereum.CallMsg) ([]byte, error)
	// Send, when set, may refuse a signed transaction before it is pooled.
	Send func(tx *ethtypes.Transaction) error
	// Receipt decides the receipt of a pooled transaction. Nil mines every
	// transaction successfully.
	Receipt func(tx *ethtypes.Transaction) (*ethtypes.Receipt, error)

	SubscribeErr error
	FilterErr    error
	History      []ethtypes.Log

	sent    []*ethtypes.Transaction
	nonces  map[common.Address]uint64
	queries []ethereum.FilterQuery
	calls   []string
	subs    []*Subscription
	live    chan<- ethtypes.Log
}

func NewBackend() *Backend {
	return &Backend{nonces: make(map[common.Address]uint64)}
}

func (b *Backend) record(call string) {
	b.calls = append(b.calls, call)
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(ChainID), nil
}

func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record("head")
	if b.HeadErr != nil {
		return 0, b.HeadErr
	}

	return b.Head, nil
}

func (b *Backend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	call := b.Call
	b.mu.Unlock()

	if call == nil {
		return nil, nil
	}

	return call(msg)
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return &ethtypes.Header{Number: new(big.Int).SetUint64(b.Head)}, nil
}

func (b *Backend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.nonces[account], nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(20_000_000_000), nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *Backend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 100000, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(ChainID), tx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	send := b.Send
	b.mu.Unlock()

	if send != nil {
		if err := send(tx); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.record("send")
	b.sent = append(b.sent, tx)
	b.nonces[from] = tx.Nonce() + 1

	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	b.mu.Lock()
	var tx *ethtypes.Transaction
	for _, t := range b.sent {
		if t.Hash() == txHash {
			tx = t
			break
		}
	}
	hook := b.Receipt
	head := b.Head
	b.mu.Unlock()

	if tx == nil {
		return nil, ethereum.NotFound
	}
	if hook != nil {
		return hook(tx)
	}

	return &ethtypes.Receipt{
		Status:      ethtypes.ReceiptStatusSuccessful,
		TxHash:      txHash,
		BlockNumber: new(big.Int).SetUint64(head),
		GasUsed:     21000,
	}, nil
}

func (b *Backend) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record("filter")
	b.queries = append(b.queries, query)
	if b.FilterErr != nil {
		return nil, b.FilterErr
	}

	return append([]ethtypes.Log(nil), b.History...), nil
}

func (b *Backend) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record("subscribe")
	if b.SubscribeErr != nil {
		return nil, b.SubscribeErr
	}

	sub := &Subscription{errc: make(chan error, 1), done: make(chan struct{})}
	b.subs = append(b.subs, sub)
	b.live = ch

	return sub, nil
}

// Emit delivers a log on the latest live subscription.
func (b *Backend) Emit(l ethtypes.Log) {
	b.mu.Lock()
	live := b.live
	b.mu.Unlock()

	live <- l
}

// Sent lists pooled transactions in send order.
func (b *Backend) Sent() []*ethtypes.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]*ethtypes.Transaction(nil), b.sent...)
}

// Calls lists head, filter, subscribe and send calls in order.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.calls...)
}

func (b *Backend) Queries() []ethereum.FilterQuery {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]ethereum.FilterQuery(nil), b.queries...)
}

// Subscription returns the i-th live subscription, or nil.
func (b *Backend) Subscription(i int) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i < 0 || i >= len(b.subs) {
		return nil
	}

	return b.subs[i]
}

// Subscription is a manually driven ethereum.Subscription.
type Subscription struct {
	errc chan error
	once sync.Once
	done chan struct{}
}

func (s *Subscription) Err() <-chan error { return s.errc }

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed once Unsubscribe ran.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Fail reports a subscription error as a dropped websocket would.
func (s *Subscription) Fail(err error) {
	s.errc <- err
}

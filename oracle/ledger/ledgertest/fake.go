// Package ledgertest provides an in-memory ledger.Gateway for tests.
package ledgertest

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

var _ ledger.Gateway = (*Gateway)(nil)

// Submission is one recorded SubmitResponse call.
type Submission struct {
	Response ledger.Response
	From     common.Address
	GasLimit uint64
}

// Gateway is a scripted ledger. Zero value is not usable, call New.
type Gateway struct {
	mu sync.Mutex

	Fee    *big.Int
	FeeErr error

	// Indexes is what GetAssignedIndexes returns per account once registered.
	Indexes map[common.Address][]types.Index
	// RegisterErr fails registration for specific accounts.
	RegisterErr map[common.Address]error
	// IndexesErr fails the read-back for specific accounts.
	IndexesErr map[common.Address]error
	// SubmitHook, when set, decides the outcome of a submission.
	SubmitHook func(ctx context.Context, resp ledger.Response, from common.Address) error
	// SubscribeErr fails SubscribeOracleRequests.
	SubscribeErr error

	registered  []common.Address
	paid        map[common.Address]*big.Int
	submissions []Submission
	streams     []*Stream
	fromBlocks  []uint64
	head        atomic.Uint64
	inRegister  atomic.Int32
}

func New() *Gateway {
	return &Gateway{
		Fee:         big.NewInt(1_000_000_000_000_000_000),
		Indexes:     make(map[common.Address][]types.Index),
		RegisterErr: make(map[common.Address]error),
		IndexesErr:  make(map[common.Address]error),
		paid:        make(map[common.Address]*big.Int),
	}
}

func (g *Gateway) RegistrationFee(ctx context.Context) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FeeErr != nil {
		return nil, g.FeeErr
	}
	if g.Fee == nil {
		return nil, nil
	}

	return new(big.Int).Set(g.Fee), nil
}

func (g *Gateway) RegisterOracle(ctx context.Context, from common.Address, fee *big.Int) (common.Hash, error) {
	if n := g.inRegister.Add(1); n > 1 {
		g.inRegister.Add(-1)
		return common.Hash{}, fmt.Errorf("concurrent registration for %s", from.Hex())
	}
	defer g.inRegister.Add(-1)

	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err, ok := g.RegisterErr[from]; ok {
		return common.Hash{}, err
	}
	if g.Fee != nil && (fee == nil || fee.Cmp(g.Fee) < 0) {
		return common.Hash{}, errorsmod.Wrapf(types.ErrRegistrationReverted, "fee %v below %v", fee, g.Fee)
	}

	g.registered = append(g.registered, from)
	g.paid[from] = fee
	g.head.Add(1)

	return txHash("register", from, len(g.registered)), nil
}

func (g *Gateway) GetAssignedIndexes(ctx context.Context, account common.Address) ([]types.Index, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err, ok := g.IndexesErr[account]; ok {
		return nil, err
	}
	if _, ok := g.paid[account]; !ok {
		return nil, fmt.Errorf("not registered as an oracle: %s", account.Hex())
	}

	indexes, ok := g.Indexes[account]
	if !ok {
		return nil, fmt.Errorf("no indexes scripted for %s", account.Hex())
	}

	out := make([]types.Index, len(indexes))
	copy(out, indexes)

	return out, nil
}

func (g *Gateway) SubmitResponse(ctx context.Context, resp ledger.Response, from common.Address, gasLimit uint64) (common.Hash, error) {
	g.mu.Lock()
	hook := g.SubmitHook
	g.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, resp, from); err != nil {
			return common.Hash{}, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.submissions = append(g.submissions, Submission{Response: resp, From: from, GasLimit: gasLimit})
	g.head.Add(1)

	return txHash("submit", from, len(g.submissions)), nil
}

func (g *Gateway) SubscribeOracleRequests(ctx context.Context, fromBlock uint64) (ledger.Stream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.SubscribeErr != nil {
		return nil, g.SubscribeErr
	}

	s := NewStream()
	g.streams = append(g.streams, s)
	g.fromBlocks = append(g.fromBlocks, fromBlock)

	return s, nil
}

func (g *Gateway) BlockNumber(ctx context.Context) (uint64, error) {
	return g.head.Load(), nil
}

// Registered lists accounts in registration order.
func (g *Gateway) Registered() []common.Address {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]common.Address(nil), g.registered...)
}

func (g *Gateway) Submissions() []Submission {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]Submission(nil), g.submissions...)
}

// Stream returns the i-th stream opened by SubscribeOracleRequests, or nil.
func (g *Gateway) Stream(i int) *Stream {
	g.mu.Lock()
	defer g.mu.Unlock()

	if i < 0 || i >= len(g.streams) {
		return nil
	}

	return g.streams[i]
}

func (g *Gateway) FromBlocks() []uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]uint64(nil), g.fromBlocks...)
}

// Stream is a manually driven ledger.Stream.
type Stream struct {
	events chan types.QueryEvent
	errs   chan error
	quit   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

func NewStream() *Stream {
	return &Stream{
		events: make(chan types.QueryEvent, 64),
		errs:   make(chan error, 1),
		quit:   make(chan struct{}),
	}
}

func (s *Stream) Events() <-chan types.QueryEvent { return s.events }
func (s *Stream) Err() <-chan error               { return s.errs }

func (s *Stream) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.quit)
	})
}

func (s *Stream) Closed() bool {
	return s.closed.Load()
}

// Push delivers an event unless the stream was closed.
func (s *Stream) Push(event types.QueryEvent) bool {
	select {
	case s.events <- event:
		return true
	case <-s.quit:
		return false
	}
}

// Fail reports a transport error.
func (s *Stream) Fail(err error) {
	s.errs <- err
}

// End closes the event channel as a node would on a clean shutdown.
func (s *Stream) End() {
	close(s.events)
}

// Address derives a stable account for tests.
func Address(i int) common.Address {
	return crypto.CreateAddress(common.HexToAddress("0xf11947"), uint64(i))
}

// Event builds a query event with a unique log identity.
func Event(selector types.Index, flight string, seq int) types.QueryEvent {
	return types.QueryEvent{
		SelectorIndex: selector,
		Airline:       common.HexToAddress("0xA1"),
		Flight:        flight,
		Timestamp:     big.NewInt(1700000000 + int64(seq)),
		BlockNumber:   uint64(seq),
		TxHash:        crypto.Keccak256Hash([]byte(fmt.Sprintf("event-%d", seq))),
		LogIndex:      uint(seq % 4),
	}
}

func txHash(kind string, from common.Address, n int) common.Hash {
	return crypto.Keccak256Hash([]byte(kind), from.Bytes(), big.NewInt(int64(n)).Bytes())
}

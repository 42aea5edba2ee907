package ledger

import (
	"context"
	"errors"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

var errSubscriptionClosed = errors.New("subscription closed by node")

type decodeFunc func(ethtypes.Log) (types.QueryEvent, error)

type logStream struct {
	decode decodeFunc
	events chan types.QueryEvent
	errs   chan error
	quit   chan struct{}
	once   sync.Once
}

func newLogStream(decode decodeFunc) *logStream {
	return &logStream{
		decode: decode,
		events: make(chan types.QueryEvent),
		errs:   make(chan error, 1),
		quit:   make(chan struct{}),
	}
}

func (s *logStream) Events() <-chan types.QueryEvent {
	return s.events
}

func (s *logStream) Err() <-chan error {
	return s.errs
}

func (s *logStream) Close() {
	s.once.Do(func() { close(s.quit) })
}

func (s *logStream) run(ctx context.Context, history []ethtypes.Log, live <-chan ethtypes.Log, sub ethereum.Subscription) {
	defer close(s.events)
	defer sub.Unsubscribe()

	for _, l := range history {
		if !s.forward(ctx, l) {
			return
		}
	}

	for {
		select {
		case l := <-live:
			if !s.forward(ctx, l) {
				return
			}
		case err, ok := <-sub.Err():
			if !ok || err == nil {
				err = errSubscriptionClosed
			}
			s.errs <- errorsmod.Wrap(types.ErrTransport, err.Error())
			return
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		}
	}
}

func (s *logStream) forward(ctx context.Context, l ethtypes.Log) bool {
	if l.Removed {
		log.Debugf("skipping removed log %s:%d", l.TxHash.Hex(), l.Index)
		return true
	}

	event, err := s.decode(l)
	if err != nil {
		log.Errorf("failed to decode log %s:%d: %v", l.TxHash.Hex(), l.Index, err)
		return true
	}

	select {
	case s.events <- event:
		return true
	case <-ctx.Done():
		return false
	case <-s.quit:
		return false
	}
}

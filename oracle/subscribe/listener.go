package subscribe

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ReneKroon/ttlcache"
	metrics "github.com/armon/go-metrics"

	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

const DefaultDedupeTTL = 10 * time.Minute

var errStreamEnded = errors.New("event stream ended")

// Stats are counters since the listener was created.
type Stats struct {
	Received   uint64 `json:"received"`
	Duplicates uint64 `json:"duplicates"`
	HandedOff  uint64 `json:"handed_off"`
}

type Option func(*Listener)

func WithDedupeTTL(ttl time.Duration) Option {
	return func(l *Listener) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Listener) { l.metrics = m }
}

// Listener turns the ledger's OracleRequest stream into ordered handoffs.
type Listener struct {
	gw      ledger.Gateway
	ttl     time.Duration
	metrics *metrics.Metrics

	received   atomic.Uint64
	duplicates atomic.Uint64
	handedOff  atomic.Uint64
}

func NewListener(gw ledger.Gateway, opts ...Option) *Listener {
	l := &Listener{gw: gw, ttl: DefaultDedupeTTL}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Listen streams events from fromBlock and calls onEvent for each one, in
// stream order and one at a time. onEvent must not block. Listen returns nil
// when ctx is cancelled and a wrapped ErrTransport when the stream fails.
func (l *Listener) Listen(ctx context.Context, fromBlock uint64, onEvent func(types.QueryEvent)) error {
	stream, err := l.gw.SubscribeOracleRequests(ctx, fromBlock)
	if err != nil {
		return transportError(err)
	}
	defer stream.Close()
	log.Infof("listening for oracle requests from block %d", fromBlock)

	seen := ttlcache.NewCache()
	seen.SetTTL(l.ttl)
	defer seen.Close()

	for {
		select {
		case <-ctx.Done():
			log.Debugf("listener stopped: %v", ctx.Err())
			return nil

		case err := <-stream.Err():
			log.Errorf("oracle request stream failed: %v", err)
			return transportError(err)

		case event, ok := <-stream.Events():
			if !ok {
				return l.ended(ctx, stream)
			}
			l.handle(seen, event, onEvent)
		}
	}
}

func (l *Listener) handle(seen *ttlcache.Cache, event types.QueryEvent, onEvent func(types.QueryEvent)) {
	l.received.Add(1)
	l.incr("received")

	key := event.Key()
	if _, dup := seen.Get(key); dup {
		l.duplicates.Add(1)
		l.incr("duplicates")
		log.Debugf("dropping duplicate request %s", key)
		return
	}
	seen.Set(key, true)

	log.Debugf("oracle request: %s", event)
	onEvent(event)
	l.handedOff.Add(1)
	l.incr("handed_off")
}

func (l *Listener) ended(ctx context.Context, stream ledger.Stream) error {
	select {
	case err := <-stream.Err():
		log.Errorf("oracle request stream failed: %v", err)
		return transportError(err)
	default:
	}
	if ctx.Err() != nil {
		return nil
	}

	return transportError(errStreamEnded)
}

func (l *Listener) incr(name string) {
	if l.metrics != nil {
		l.metrics.IncrCounter([]string{"listener", name}, 1)
	}
}

func (l *Listener) Stats() Stats {
	return Stats{
		Received:   l.received.Load(),
		Duplicates: l.duplicates.Load(),
		HandedOff:  l.handedOff.Load(),
	}
}

func transportError(err error) error {
	if errors.Is(err, types.ErrTransport) {
		return err
	}

	return errorsmod.Wrap(types.ErrTransport, err.Error())
}

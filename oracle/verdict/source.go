// Package verdict decides which flight status an oracle reports.
package verdict

import (
	"context"
	"math/rand"
	"sync"

	errorsmod "cosmossdk.io/errors"

	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

// Source produces the status an oracle submits for an event.
type Source interface {
	Verdict(ctx context.Context, oracle types.OracleIdentity, event types.QueryEvent) (types.StatusVerdict, error)
}

// Random picks uniformly from the fixed verdict set. A given seed and call
// order always yield the same sequence.
type Random struct {
	mu  sync.Mutex
	rnd *rand.Rand
	set []types.StatusVerdict
}

func NewRandom(seed int64) *Random {
	return &Random{
		rnd: rand.New(rand.NewSource(seed)),
		set: types.Verdicts(),
	}
}

func (r *Random) Verdict(ctx context.Context, _ types.OracleIdentity, _ types.QueryEvent) (types.StatusVerdict, error) {
	if err := ctx.Err(); err != nil {
		return types.Unknown, errorsmod.Wrap(types.ErrVerdictSource, err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.set[r.rnd.Intn(len(r.set))], nil
}

// Sequence cycles through a fixed list of verdicts.
type Sequence struct {
	mu   sync.Mutex
	list []types.StatusVerdict
	next int
}

func NewSequence(list ...types.StatusVerdict) (*Sequence, error) {
	if len(list) == 0 {
		return nil, errorsmod.Wrap(types.ErrVerdictSource, "empty verdict sequence")
	}
	for _, v := range list {
		if !v.Valid() {
			return nil, errorsmod.Wrapf(types.ErrVerdictSource, "invalid verdict %d", uint8(v))
		}
	}

	return &Sequence{list: append([]types.StatusVerdict(nil), list...)}, nil
}

func (s *Sequence) Verdict(context.Context, types.OracleIdentity, types.QueryEvent) (types.StatusVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.list[s.next%len(s.list)]
	s.next++

	return v, nil
}

// Func adapts a function to Source.
type Func func(ctx context.Context, oracle types.OracleIdentity, event types.QueryEvent) (types.StatusVerdict, error)

func (f Func) Verdict(ctx context.Context, oracle types.OracleIdentity, event types.QueryEvent) (types.StatusVerdict, error) {
	return f(ctx, oracle, event)
}

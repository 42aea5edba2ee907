package registry

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

// Builder collects identities during bootstrap. It has a single writer and
// is not safe for concurrent use.
type Builder struct {
	oracles []types.OracleIdentity
	byAddr  map[common.Address]int
	frozen  bool
}

func NewBuilder() *Builder {
	return &Builder{byAddr: make(map[common.Address]int)}
}

func (b *Builder) Add(oracle types.OracleIdentity) error {
	if b.frozen {
		return errorsmod.Wrap(types.ErrRegistration, "registry already frozen")
	}
	if oracle.Address == (common.Address{}) {
		return errorsmod.Wrap(types.ErrRegistration, "zero oracle address")
	}
	if len(oracle.Indexes) == 0 {
		return errorsmod.Wrapf(types.ErrRegistration, "oracle %s has no indexes", oracle.Address.Hex())
	}
	if _, ok := b.byAddr[oracle.Address]; ok {
		return errorsmod.Wrapf(types.ErrRegistration, "oracle %s already added", oracle.Address.Hex())
	}

	b.byAddr[oracle.Address] = len(b.oracles)
	b.oracles = append(b.oracles, oracle.Clone())

	return nil
}

func (b *Builder) Len() int {
	return len(b.oracles)
}

// Freeze publishes the collected identities. The builder refuses Add
// afterwards.
func (b *Builder) Freeze() *Registry {
	b.frozen = true

	r := &Registry{
		oracles: b.oracles,
		byAddr:  b.byAddr,
		byIndex: make(map[types.Index][]int),
	}
	for pos, oracle := range r.oracles {
		seen := make(map[types.Index]struct{}, len(oracle.Indexes))
		for _, idx := range oracle.Indexes {
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}
			r.byIndex[idx] = append(r.byIndex[idx], pos)
		}
	}

	return r
}

// Registry is the frozen set of oracle identities. Nothing mutates it after
// Freeze, so concurrent readers need no lock.
type Registry struct {
	oracles []types.OracleIdentity
	byAddr  map[common.Address]int
	byIndex map[types.Index][]int
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.oracles)
}

func (r *Registry) Get(addr common.Address) (types.OracleIdentity, bool) {
	if r == nil {
		return types.OracleIdentity{}, false
	}
	pos, ok := r.byAddr[addr]
	if !ok {
		return types.OracleIdentity{}, false
	}

	return r.oracles[pos].Clone(), true
}

// All returns copies of every identity in registration order.
func (r *Registry) All() []types.OracleIdentity {
	if r == nil {
		return []types.OracleIdentity{}
	}

	out := make([]types.OracleIdentity, len(r.oracles))
	for i, oracle := range r.oracles {
		out[i] = oracle.Clone()
	}

	return out
}

func (r *Registry) Addresses() []common.Address {
	if r == nil {
		return nil
	}

	out := make([]common.Address, len(r.oracles))
	for i, oracle := range r.oracles {
		out[i] = oracle.Address
	}

	return out
}

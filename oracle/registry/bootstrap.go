package registry

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

type slot struct {
	oracle types.OracleIdentity
	ok     bool
}

// Bootstrap registers the first poolSize accounts with the ledger and reads
// back the indexes each one was assigned. Registrations run one at a time;
// the read-back of registration i overlaps registration i+1. Accounts whose
// registration or read-back fails are skipped.
func Bootstrap(ctx context.Context, gw ledger.Gateway, accounts []common.Address, poolSize int) (*Registry, error) {
	if poolSize <= 0 {
		return nil, errorsmod.Wrapf(types.ErrRegistration, "pool size %d", poolSize)
	}

	fee, err := gw.RegistrationFee(ctx)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrRegistration, "failed to query registration fee: %v", err)
	}
	if fee == nil || fee.Sign() <= 0 {
		return nil, errorsmod.Wrapf(types.ErrRegistration, "fee mismatch: %v", fee)
	}

	if len(accounts) < poolSize {
		return nil, errorsmod.Wrapf(types.ErrRegistration, "account pool exhausted: %d accounts for %d oracles", len(accounts), poolSize)
	}
	log.Infof("registering %d oracles, fee %s", poolSize, fee)

	slots := make([]slot, poolSize)
	var wg sync.WaitGroup

	for i, account := range accounts[:poolSize] {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, fmt.Errorf("bootstrap cancelled after %d registrations: %w", i, err)
		}

		txHash, err := gw.RegisterOracle(ctx, account, new(big.Int).Set(fee))
		if err != nil {
			log.Errorf("failed to register oracle %s: %v", account.Hex(), err)
			continue
		}
		log.Debugf("registered oracle %s in %s", account.Hex(), txHash.Hex())

		wg.Add(1)
		go func(i int, account common.Address) {
			defer wg.Done()
			slots[i] = readBack(ctx, gw, account)
		}(i, account)
	}
	wg.Wait()

	b := NewBuilder()
	for _, s := range slots {
		if !s.ok {
			continue
		}
		if err := b.Add(s.oracle); err != nil {
			log.Errorf("failed to add oracle %s: %v", s.oracle.Address.Hex(), err)
		}
	}

	switch n := b.Len(); {
	case n == 0:
		return nil, errorsmod.Wrap(types.ErrRegistration, "no oracle registered")
	case n < poolSize:
		log.Warnf("registered %d of %d oracles", n, poolSize)
	default:
		log.Infof("registered %d oracles", n)
	}

	return b.Freeze(), nil
}

func readBack(ctx context.Context, gw ledger.Gateway, account common.Address) slot {
	indexes, err := gw.GetAssignedIndexes(ctx, account)
	if err != nil {
		log.Errorf("failed to read indexes of %s: %v", account.Hex(), err)
		return slot{}
	}
	if len(indexes) == 0 {
		log.Errorf("oracle %s was assigned no indexes", account.Hex())
		return slot{}
	}

	oracle := types.OracleIdentity{Address: account, Indexes: indexes, Registered: true}
	log.Infof("oracle registered: %s", oracle)

	return slot{oracle: oracle, ok: true}
}

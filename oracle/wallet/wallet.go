package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/tyler-smith/go-bip39"
)

// PathFormat is the Ganache/Truffle derivation path for account i.
const PathFormat = "m/44'/60'/0'/0/%d"

// Pool is the fixed set of pre-funded accounts derived from one mnemonic.
// It is read-only after NewPool.
type Pool struct {
	accounts []accounts.Account
	keys     map[common.Address]*ecdsa.PrivateKey
}

// NewPool derives the first size accounts of the mnemonic.
func NewPool(mnemonic string, size int) (*Pool, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive: %d", size)
	}

	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	p := &Pool{
		accounts: make([]accounts.Account, 0, size),
		keys:     make(map[common.Address]*ecdsa.PrivateKey, size),
	}

	for i := 0; i < size; i++ {
		path, err := hdwallet.ParseDerivationPath(fmt.Sprintf(PathFormat, i))
		if err != nil {
			return nil, fmt.Errorf("failed to parse derivation path %d: %w", i, err)
		}

		account, err := w.Derive(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to derive account %d: %w", i, err)
		}

		key, err := w.PrivateKey(account)
		if err != nil {
			return nil, fmt.Errorf("failed to get private key %d: %w", i, err)
		}

		p.accounts = append(p.accounts, account)
		p.keys[account.Address] = key
	}

	return p, nil
}

func (p *Pool) Len() int {
	return len(p.accounts)
}

// Addresses returns up to n addresses starting after the first offset
// accounts. Fewer than n are returned when the pool runs out.
func (p *Pool) Addresses(offset, n int) []common.Address {
	if offset < 0 {
		offset = 0
	}

	out := make([]common.Address, 0, max(n, 0))
	for i := offset; i < len(p.accounts) && len(out) < n; i++ {
		out = append(out, p.accounts[i].Address)
	}

	return out
}

func (p *Pool) Key(addr common.Address) (*ecdsa.PrivateKey, error) {
	key, ok := p.keys[addr]
	if !ok {
		return nil, fmt.Errorf("no key for account %s", addr.Hex())
	}

	return key, nil
}

// Transactor returns signing options bound to addr for the given chain.
func (p *Pool) Transactor(addr common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	key, err := p.Key(addr)
	if err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor for %s: %w", addr.Hex(), err)
	}

	return opts, nil
}

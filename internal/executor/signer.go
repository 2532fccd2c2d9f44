package executor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the executor's single logical owner of the backend account,
// per §5's shared-resource policy: every outbound transaction is
// serialized through Acquire so go-ethereum's automatic pending-nonce
// lookup (bind.TransactOpts with a nil Nonce) never races itself across
// concurrently-running vote attempts.
type Signer struct {
	mu   sync.Mutex
	opts *bind.TransactOpts
	from common.Address
}

// NewSigner loads a backend private key and binds it to chainID.
func NewSigner(privateKeyHex string, chainID *big.Int) (*Signer, error) {
	key, err := loadPrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	return &Signer{opts: opts, from: opts.From}, nil
}

func loadPrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("backend private key required")
	}
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse backend private key: %w", err)
	}
	return key, nil
}

// Address returns the signer's on-chain account.
func (s *Signer) Address() common.Address {
	return s.from
}

// Acquire blocks until the signer is free, then returns a *bind.TransactOpts
// scoped to ctx and a release func the caller must defer. The returned
// opts is a shallow copy so callers never mutate the shared base.
func (s *Signer) Acquire(ctx context.Context) (*bind.TransactOpts, func()) {
	s.mu.Lock()
	opts := *s.opts
	opts.Context = ctx
	return &opts, s.mu.Unlock
}

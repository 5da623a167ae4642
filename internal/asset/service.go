package asset

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Service is the capability interface the settlement engine needs from a
// value-transfer backend. TransferFrom spends the owner's allowance granted
// to the engine operator; the engine never holds funds itself.
type Service interface {
	Decimals(ctx context.Context, asset common.Address) (uint8, error)
	BalanceOf(ctx context.Context, asset, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, asset, owner, spender common.Address) (*big.Int, error)
	TransferFrom(ctx context.Context, asset, owner, to common.Address, amount *big.Int) error
}

// Transactional backends stage transfers so a settlement batch either
// commits as a whole or leaves no trace.
type Transactional interface {
	Service
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one staged unit of transfers. Rollback after Commit is a no-op.
type Tx interface {
	Service
	Commit() error
	Rollback() error
}

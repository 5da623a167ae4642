package asset

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type balanceKey struct {
	asset common.Address
	owner common.Address
}

type allowanceKey struct {
	asset   common.Address
	owner   common.Address
	spender common.Address
}

// Book is the in-process custodial balance backend. It mirrors ERC-20
// semantics: transfers spend the allowance the owner granted to the book's
// operator (the engine identity). Begin snapshots state so a whole
// settlement batch commits or vanishes.
type Book struct {
	mu         sync.RWMutex
	operator   common.Address
	decimals   map[common.Address]uint8
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
}

func NewBook(operator common.Address) *Book {
	return &Book{
		operator:   operator,
		decimals:   make(map[common.Address]uint8),
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

// SetDecimals registers an asset's decimal precision. Unregistered assets
// default to 18.
func (b *Book) SetDecimals(asset common.Address, decimals uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.decimals[asset] = decimals
}

// Mint credits an owner's balance out of thin air. Deposit plumbing sits
// outside the engine; tests and the local backend use this directly.
func (b *Book) Mint(asset, owner common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := balanceKey{asset, owner}
	cur, ok := b.balances[key]
	if !ok {
		cur = new(big.Int)
		b.balances[key] = cur
	}
	cur.Add(cur, amount)
}

// Approve sets the owner's allowance for a spender, replacing any prior value.
func (b *Book) Approve(asset, owner, spender common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowances[allowanceKey{asset, owner, spender}] = new(big.Int).Set(amount)
}

func (b *Book) Decimals(_ context.Context, asset common.Address) (uint8, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if d, ok := b.decimals[asset]; ok {
		return d, nil
	}
	return 18, nil
}

func (b *Book) BalanceOf(_ context.Context, asset, owner common.Address) (*big.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bal, ok := b.balances[balanceKey{asset, owner}]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (b *Book) Allowance(_ context.Context, asset, owner, spender common.Address) (*big.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if al, ok := b.allowances[allowanceKey{asset, owner, spender}]; ok {
		return new(big.Int).Set(al), nil
	}
	return new(big.Int), nil
}

func (b *Book) TransferFrom(ctx context.Context, asset, owner, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return transferLocked(b.balances, b.allowances, b.operator, asset, owner, to, amount)
}

// Begin deep-copies balances and allowances. The engine serializes all
// mutating calls, so no other writer races the open transaction.
func (b *Book) Begin(_ context.Context) (Tx, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	balances := make(map[balanceKey]*big.Int, len(b.balances))
	for k, v := range b.balances {
		balances[k] = new(big.Int).Set(v)
	}
	allowances := make(map[allowanceKey]*big.Int, len(b.allowances))
	for k, v := range b.allowances {
		allowances[k] = new(big.Int).Set(v)
	}
	return &bookTx{book: b, balances: balances, allowances: allowances}, nil
}

type bookTx struct {
	book       *Book
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
	done       bool
}

func (tx *bookTx) Decimals(ctx context.Context, asset common.Address) (uint8, error) {
	return tx.book.Decimals(ctx, asset)
}

func (tx *bookTx) BalanceOf(_ context.Context, asset, owner common.Address) (*big.Int, error) {
	if bal, ok := tx.balances[balanceKey{asset, owner}]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (tx *bookTx) Allowance(_ context.Context, asset, owner, spender common.Address) (*big.Int, error) {
	if al, ok := tx.allowances[allowanceKey{asset, owner, spender}]; ok {
		return new(big.Int).Set(al), nil
	}
	return new(big.Int), nil
}

func (tx *bookTx) TransferFrom(_ context.Context, asset, owner, to common.Address, amount *big.Int) error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	return transferLocked(tx.balances, tx.allowances, tx.book.operator, asset, owner, to, amount)
}

func (tx *bookTx) Commit() error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	tx.done = true
	tx.book.mu.Lock()
	defer tx.book.mu.Unlock()
	tx.book.balances = tx.balances
	tx.book.allowances = tx.allowances
	return nil
}

func (tx *bookTx) Rollback() error {
	tx.done = true
	return nil
}

func transferLocked(balances map[balanceKey]*big.Int, allowances map[allowanceKey]*big.Int,
	operator, asset, owner, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}

	bal, ok := balances[balanceKey{asset, owner}]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: %s holds %s of %s, needs %s",
			owner.Hex(), balanceString(bal), asset.Hex(), amount.String())
	}
	alKey := allowanceKey{asset, owner, operator}
	al, ok := allowances[alKey]
	if !ok || al.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient allowance: %s granted %s of %s to operator, needs %s",
			owner.Hex(), balanceString(al), asset.Hex(), amount.String())
	}

	bal.Sub(bal, amount)
	al.Sub(al, amount)

	toKey := balanceKey{asset, to}
	toBal, ok := balances[toKey]
	if !ok {
		toBal = new(big.Int)
		balances[toKey] = toBal
	}
	toBal.Add(toBal, amount)
	return nil
}

func balanceString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

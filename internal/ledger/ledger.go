package ledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// groupSize nonces share one bitmask word, matching the uint256 slot
// layout of on-chain nonce bitmaps. The grouping is a storage shape only;
// observably the ledger is a set of (signer, nonce) pairs.
const groupSize = 256

// Ledger tracks consumed one-time nonces per signer. A nonce can succeed
// MarkUsed at most once, ever; there is no unmark.
type Ledger struct {
	mu     sync.Mutex
	groups map[common.Address]map[uint64]*big.Int
}

func New() *Ledger {
	return &Ledger{
		groups: make(map[common.Address]map[uint64]*big.Int),
	}
}

// IsUsed reports whether the nonce has been consumed for the signer.
func (l *Ledger) IsUsed(signer common.Address, nonce uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isUsedLocked(signer, nonce)
}

// MarkUsed consumes the nonce for the signer. Returns false without effect
// if the nonce was already used; true after recording it. Check-then-set is
// a single atomic operation, a nonce is never double-charged.
func (l *Ledger) MarkUsed(signer common.Address, nonce uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.isUsedLocked(signer, nonce) {
		return false
	}

	byGroup, ok := l.groups[signer]
	if !ok {
		byGroup = make(map[uint64]*big.Int)
		l.groups[signer] = byGroup
	}
	group := nonce / groupSize
	word, ok := byGroup[group]
	if !ok {
		word = new(big.Int)
		byGroup[group] = word
	}
	word.SetBit(word, int(nonce%groupSize), 1)
	return true
}

func (l *Ledger) isUsedLocked(signer common.Address, nonce uint64) bool {
	byGroup, ok := l.groups[signer]
	if !ok {
		return false
	}
	word, ok := byGroup[nonce/groupSize]
	if !ok {
		return false
	}
	return word.Bit(int(nonce%groupSize)) == 1
}

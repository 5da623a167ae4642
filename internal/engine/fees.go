package engine

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/swapgate/swapgate/internal/pkg/apperrors"
)

// FeeDivisor scales basis points; a rate of 10000 would be 100% and is
// rejected at the door.
const FeeDivisor = 10000

// FeeTable maps referrer identities to their fee rate in basis points.
// Only the stored admin identity may change it.
type FeeTable struct {
	mu    sync.RWMutex
	admin common.Address
	rates map[common.Address]uint16
}

func NewFeeTable(admin common.Address) *FeeTable {
	return &FeeTable{
		admin: admin,
		rates: make(map[common.Address]uint16),
	}
}

func (t *FeeTable) Set(caller, referrer common.Address, feeBps uint16) error {
	if caller != t.admin || t.admin == (common.Address{}) {
		return apperrors.NewUnauthorized("caller is not the fee administrator")
	}
	if referrer == (common.Address{}) {
		return apperrors.NewInvalidRequest("referrer is required")
	}
	if feeBps >= FeeDivisor {
		return apperrors.NewInvalidRequest("fee must be below 10000 basis points")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates[referrer] = feeBps
	return nil
}

// FeeOf returns the rate for a referrer; unknown referrers and the zero
// address pay nothing.
func (t *FeeTable) FeeOf(referrer common.Address) uint16 {
	if referrer == (common.Address{}) {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rates[referrer]
}

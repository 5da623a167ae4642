package registry

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/swapgate/swapgate/internal/pkg/apperrors"
)

// Offer is a seller's standing sell intent. All fields except AvailableSize,
// TotalSales and IsOpen are immutable after creation.
type Offer struct {
	ID           uint64
	Seller       common.Address
	OfferedAsset common.Address
	BiddingAsset common.Address
	// MinPrice is bidding-asset units per one offered-asset unit, scaled by
	// 10^decimals of the offered asset.
	MinPrice      *big.Int
	MinBidSize    *big.Int
	TotalSize     *big.Int
	AvailableSize *big.Int
	TotalSales    *big.Int
	IsOpen        bool
	CreatedAt     time.Time
}

// Clone returns a deep copy safe to mutate without touching stored state.
func (o *Offer) Clone() *Offer {
	cp := *o
	cp.MinPrice = new(big.Int).Set(o.MinPrice)
	cp.MinBidSize = new(big.Int).Set(o.MinBidSize)
	cp.TotalSize = new(big.Int).Set(o.TotalSize)
	cp.AvailableSize = new(big.Int).Set(o.AvailableSize)
	cp.TotalSales = new(big.Int).Set(o.TotalSales)
	return &cp
}

type CreateParams struct {
	Seller       common.Address
	OfferedAsset common.Address
	BiddingAsset common.Address
	MinPrice     *big.Int
	MinBidSize   *big.Int
	TotalSize    *big.Int
}

// Registry stores offer records in memory for the process lifetime.
// Ids are sequential starting at 1.
type Registry struct {
	mu     sync.RWMutex
	nextID uint64
	offers map[uint64]*Offer
}

func New() *Registry {
	return &Registry{
		nextID: 1,
		offers: make(map[uint64]*Offer),
	}
}

// Create validates the offer preconditions, each with its own reason, and
// stores the record open with AvailableSize = TotalSize.
func (r *Registry) Create(p CreateParams) (*Offer, error) {
	if p.Seller == (common.Address{}) {
		return nil, apperrors.NewInvalidRequest("seller is required")
	}
	if p.OfferedAsset == (common.Address{}) {
		return nil, apperrors.NewInvalidRequest("offered asset is required")
	}
	if p.BiddingAsset == (common.Address{}) {
		return nil, apperrors.NewInvalidRequest("bidding asset is required")
	}
	if p.MinPrice == nil || p.MinPrice.Sign() <= 0 {
		return nil, apperrors.NewInvalidRequest("minimum price must be greater than zero")
	}
	if p.MinBidSize == nil || p.MinBidSize.Sign() <= 0 {
		return nil, apperrors.NewInvalidRequest("minimum bid size must be greater than zero")
	}
	if p.TotalSize == nil || p.TotalSize.Sign() <= 0 {
		return nil, apperrors.NewInvalidRequest("total size must be greater than zero")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	offer := &Offer{
		ID:            r.nextID,
		Seller:        p.Seller,
		OfferedAsset:  p.OfferedAsset,
		BiddingAsset:  p.BiddingAsset,
		MinPrice:      new(big.Int).Set(p.MinPrice),
		MinBidSize:    new(big.Int).Set(p.MinBidSize),
		TotalSize:     new(big.Int).Set(p.TotalSize),
		AvailableSize: new(big.Int).Set(p.TotalSize),
		TotalSales:    new(big.Int),
		IsOpen:        true,
		CreatedAt:     time.Now().UTC(),
	}
	r.offers[offer.ID] = offer
	r.nextID++

	return offer.Clone(), nil
}

// Get returns a copy of the offer, or OFFER_NOT_FOUND for unallocated ids.
// A closed offer is still returned; absence and closure are distinct.
func (r *Registry) Get(id uint64) (*Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	offer, ok := r.offers[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrOfferNotFound, "offer %d does not exist", id)
	}
	return offer.Clone(), nil
}

// Close marks the offer terminally closed. Only the seller may close, and
// only once: a second close fails with OFFER_CLOSED.
func (r *Registry) Close(id uint64, caller common.Address) (*Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	offer, ok := r.offers[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrOfferNotFound, "offer %d does not exist", id)
	}
	if offer.Seller != caller {
		return nil, apperrors.NewUnauthorized("caller is not the offer seller")
	}
	if !offer.IsOpen {
		return nil, apperrors.Newf(apperrors.ErrOfferClosed, "offer %d is already closed", id)
	}
	offer.IsOpen = false
	return offer.Clone(), nil
}

// Update replaces the stored record with the given mutated copy. Used by the
// settlement engine to commit a batch in one step.
func (r *Registry) Update(offer *Offer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offers[offer.ID] = offer.Clone()
}

// OpenCount returns the number of currently open offers.
func (r *Registry) OpenCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, o := range r.offers {
		if o.IsOpen {
			n++
		}
	}
	return n
}

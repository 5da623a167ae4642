package engine

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/swapgate/swapgate/internal/asset"
	"github.com/swapgate/swapgate/internal/events"
	"github.com/swapgate/swapgate/internal/ledger"
	"github.com/swapgate/swapgate/internal/pkg/apperrors"
	"github.com/swapgate/swapgate/internal/pkg/logger"
	"github.com/swapgate/swapgate/internal/pkg/metrics"
	"github.com/swapgate/swapgate/internal/registry"
	"github.com/swapgate/swapgate/internal/signer"
)

// SignedBid pairs a bid's typed fields with its detached signature.
type SignedBid struct {
	signer.Bid
	Signature []byte
}

// Fill is the executed result of one bid within a settlement batch.
type Fill struct {
	OfferID      uint64
	Nonce        uint64
	SignerWallet common.Address
	Seller       common.Address
	SellAmount   *big.Int
	BuyAmount    *big.Int
	Referrer     common.Address
	FeeAmount    *big.Int
}

// Engine orchestrates settlement: signature recovery, replay protection,
// price/size checks, fill sizing, fees, transfers, offer updates and event
// emission. Every mutating call runs under one mutex, so calls never
// interleave; a batch commits whole or not at all.
type Engine struct {
	mu       sync.Mutex
	domain   *signer.Domain
	registry *registry.Registry
	nonces   *ledger.Ledger
	fees     *FeeTable
	assets   asset.Transactional
	sink     events.Sink
}

func New(domain *signer.Domain, reg *registry.Registry, nonces *ledger.Ledger,
	fees *FeeTable, assets asset.Transactional, sink events.Sink) *Engine {
	if sink == nil {
		sink = events.LogSink{}
	}
	return &Engine{
		domain:   domain,
		registry: reg,
		nonces:   nonces,
		fees:     fees,
		assets:   assets,
		sink:     sink,
	}
}

func (e *Engine) Domain() *signer.Domain {
	return e.domain
}

// CreateOffer validates and stores a new offer and emits its creation event.
func (e *Engine) CreateOffer(ctx context.Context, p registry.CreateParams) (*registry.Offer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	offer, err := e.registry.Create(p)
	if err != nil {
		return nil, err
	}
	e.sink.Publish(ctx, events.NewOfferCreated(offer))
	metrics.OffersOpen.Set(float64(e.registry.OpenCount()))
	logger.Info("offer created", "offer_id", offer.ID, "seller", offer.Seller.Hex())
	return offer, nil
}

// CloseOffer terminally closes an offer on behalf of its seller.
func (e *Engine) CloseOffer(ctx context.Context, id uint64, caller common.Address) (*registry.Offer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	offer, err := e.registry.Close(id, caller)
	if err != nil {
		return nil, err
	}
	e.sink.Publish(ctx, events.NewOfferClosed(offer))
	metrics.OffersOpen.Set(float64(e.registry.OpenCount()))
	logger.Info("offer closed", "offer_id", id)
	return offer, nil
}

func (e *Engine) GetOffer(id uint64) (*registry.Offer, error) {
	return e.registry.Get(id)
}

// Settle executes a batch of signed bids against one offer. Bids are
// processed in array order; the first violation aborts the entire call and
// no transfer, nonce consumption or offer mutation survives.
func (e *Engine) Settle(ctx context.Context, offerID uint64, bids []SignedBid, caller common.Address) ([]Fill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fills, err := e.settleLocked(ctx, offerID, bids, caller)
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("rejected").Inc()
		if appErr, ok := err.(*apperrors.AppError); ok {
			metrics.BidRejects.WithLabelValues(string(appErr.Type)).Inc()
		}
		return nil, err
	}
	metrics.SettlementsTotal.WithLabelValues("settled").Inc()
	metrics.FillsTotal.Add(float64(len(fills)))
	metrics.OffersOpen.Set(float64(e.registry.OpenCount()))
	return fills, nil
}

func (e *Engine) settleLocked(ctx context.Context, offerID uint64, bids []SignedBid, caller common.Address) ([]Fill, error) {
	offer, err := e.registry.Get(offerID)
	if err != nil {
		return nil, err
	}
	if offer.Seller != caller {
		return nil, apperrors.NewUnauthorized("caller is not the offer seller")
	}
	if !offer.IsOpen {
		return nil, apperrors.Newf(apperrors.ErrOfferClosed, "offer %d is closed", offerID)
	}

	decimals, err := e.assets.Decimals(ctx, offer.OfferedAsset)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrTransferFailed, "failed to read offered asset decimals", err)
	}
	scale := pow10(decimals)

	tx, err := e.assets.Begin(ctx)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrTransferFailed, "failed to begin asset transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("asset rollback failed", "error", rbErr)
			}
		}
	}()

	// Nonces consumed by earlier bids of this same batch; committed to the
	// ledger only after the whole batch succeeds.
	pending := make(map[common.Address]map[uint64]struct{})
	fills := make([]Fill, 0, len(bids))
	evs := make([]*events.Event, 0, len(bids)+1)

	for i := range bids {
		bid := &bids[i]

		recovered := e.domain.RecoverSigner(&bid.Bid, bid.Signature)
		if recovered == (common.Address{}) {
			return nil, apperrors.Newf(apperrors.ErrSignatureInvalid, "bid %d: signature invalid", i)
		}
		if recovered != bid.SignerWallet {
			return nil, apperrors.Newf(apperrors.ErrSignatureMismatched, "bid %d: signature mismatched", i)
		}

		if e.nonceTaken(pending, bid.SignerWallet, bid.Nonce) {
			return nil, apperrors.Newf(apperrors.ErrNonceUsed, "bid %d: nonce %d already used", i, bid.Nonce)
		}
		markPending(pending, bid.SignerWallet, bid.Nonce)

		if offer.AvailableSize.Sign() == 0 {
			return nil, apperrors.Newf(apperrors.ErrZeroAvailable, "bid %d: offer has no available size", i)
		}
		if bid.BuyAmount == nil || bid.BuyAmount.Cmp(offer.MinBidSize) < 0 {
			return nil, apperrors.Newf(apperrors.ErrBidTooSmall, "bid %d: buy amount below minimum bid size", i)
		}
		if bid.SellAmount == nil {
			return nil, apperrors.Newf(apperrors.ErrPriceTooLow, "bid %d: bid price below offer minimum", i)
		}

		bidPrice := new(big.Int).Mul(bid.SellAmount, scale)
		bidPrice.Div(bidPrice, bid.BuyAmount)
		if bidPrice.Cmp(offer.MinPrice) < 0 {
			return nil, apperrors.Newf(apperrors.ErrPriceTooLow, "bid %d: bid price below offer minimum", i)
		}

		sellAmount, buyAmount := fillAmounts(bid.SellAmount, bid.BuyAmount, bidPrice, offer.AvailableSize, scale)

		feeAmount := new(big.Int)
		if feeBps := e.fees.FeeOf(bid.Referrer); feeBps > 0 {
			feeAmount.Mul(sellAmount, big.NewInt(int64(feeBps)))
			feeAmount.Div(feeAmount, big.NewInt(FeeDivisor))
		}

		// Offered asset to the bidder, bidding asset (minus fee) to the
		// seller, fee to the referrer.
		if err := tx.TransferFrom(ctx, offer.OfferedAsset, offer.Seller, bid.SignerWallet, buyAmount); err != nil {
			return nil, apperrors.New(apperrors.ErrTransferFailed, "offered asset transfer failed", err)
		}
		if feeAmount.Sign() > 0 {
			if err := tx.TransferFrom(ctx, offer.BiddingAsset, bid.SignerWallet, bid.Referrer, feeAmount); err != nil {
				return nil, apperrors.New(apperrors.ErrTransferFailed, "referral fee transfer failed", err)
			}
		}
		sellerProceeds := new(big.Int).Sub(sellAmount, feeAmount)
		if err := tx.TransferFrom(ctx, offer.BiddingAsset, bid.SignerWallet, offer.Seller, sellerProceeds); err != nil {
			return nil, apperrors.New(apperrors.ErrTransferFailed, "bidding asset transfer failed", err)
		}

		offer.AvailableSize.Sub(offer.AvailableSize, buyAmount)
		offer.TotalSales.Add(offer.TotalSales, sellAmount)

		fills = append(fills, Fill{
			OfferID:      offerID,
			Nonce:        bid.Nonce,
			SignerWallet: bid.SignerWallet,
			Seller:       offer.Seller,
			SellAmount:   sellAmount,
			BuyAmount:    buyAmount,
			Referrer:     bid.Referrer,
			FeeAmount:    feeAmount,
		})
		evs = append(evs, events.NewFillExecuted(offerID, bid.Nonce, bid.SignerWallet.Hex(),
			sellAmount.String(), offer.Seller.Hex(), buyAmount.String(), bid.Referrer.Hex(), feeAmount.String()))
	}

	if offer.AvailableSize.Sign() == 0 {
		offer.IsOpen = false
		evs = append(evs, events.NewOfferExhausted(offer))
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.New(apperrors.ErrTransferFailed, "failed to commit asset transaction", err)
	}
	committed = true

	e.registry.Update(offer)
	for wallet, nonces := range pending {
		for n := range nonces {
			e.nonces.MarkUsed(wallet, n)
		}
	}
	for _, ev := range evs {
		e.sink.Publish(ctx, ev)
	}

	logger.Info("settlement executed", "offer_id", offerID, "fills", len(fills),
		"available_size", offer.AvailableSize.String())
	return fills, nil
}

// CancelNonces marks each nonce used for the caller, letting a signer
// invalidate bids they authored but never want settled. Already-used nonces
// are skipped silently; only newly consumed nonces are returned and emitted.
func (e *Engine) CancelNonces(ctx context.Context, caller common.Address, nonces []uint64) []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	cancelled := make([]uint64, 0, len(nonces))
	for _, n := range nonces {
		if e.nonces.MarkUsed(caller, n) {
			cancelled = append(cancelled, n)
			e.sink.Publish(ctx, events.NewNonceCancelled(caller.Hex(), n))
		}
	}
	if len(cancelled) > 0 {
		logger.Info("nonces cancelled", "signer", caller.Hex(), "count", len(cancelled))
	}
	return cancelled
}

// NonceUsed reports whether a nonce is consumed for a signer.
func (e *Engine) NonceUsed(signerWallet common.Address, nonce uint64) bool {
	return e.nonces.IsUsed(signerWallet, nonce)
}

// SetFee updates a referrer's rate; admin only.
func (e *Engine) SetFee(caller, referrer common.Address, feeBps uint16) error {
	return e.fees.Set(caller, referrer, feeBps)
}

func (e *Engine) FeeOf(referrer common.Address) uint16 {
	return e.fees.FeeOf(referrer)
}

func (e *Engine) nonceTaken(pending map[common.Address]map[uint64]struct{}, wallet common.Address, nonce uint64) bool {
	if e.nonces.IsUsed(wallet, nonce) {
		return true
	}
	if set, ok := pending[wallet]; ok {
		if _, dup := set[nonce]; dup {
			return true
		}
	}
	return false
}

func markPending(pending map[common.Address]map[uint64]struct{}, wallet common.Address, nonce uint64) {
	set, ok := pending[wallet]
	if !ok {
		set = make(map[uint64]struct{})
		pending[wallet] = set
	}
	set[nonce] = struct{}{}
}

// fillAmounts sizes the fill. A bid within the remaining size executes at
// its own stated amounts verbatim. A larger bid is clipped to the remainder
// with sellAmount recomputed from the bid's own price ratio, so the clipped
// execution price equals the originally signed one.
func fillAmounts(sellAmount, buyAmount, bidPrice, availableSize, scale *big.Int) (*big.Int, *big.Int) {
	if buyAmount.Cmp(availableSize) <= 0 {
		return new(big.Int).Set(sellAmount), new(big.Int).Set(buyAmount)
	}
	clippedBuy := new(big.Int).Set(availableSize)
	clippedSell := new(big.Int).Mul(clippedBuy, bidPrice)
	clippedSell.Div(clippedSell, scale)
	return clippedSell, clippedBuy
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/swapgate/swapgate/internal/pkg/apperrors"
	"github.com/swapgate/swapgate/internal/pkg/logger"
)

// DefaultMaxViolations bounds the list a single Check call accumulates.
const DefaultMaxViolations = 16

// Checker re-derives the settlement checks without mutating anything.
// Unlike Settle it does not stop at the first violated rule: every violation
// is collected so relayers can decide whether to include a bid in a batch.
// Its findings are advisory; settlement re-checks everything.
type Checker struct {
	engine *Engine
	max    int
}

func NewChecker(e *Engine, maxViolations int) *Checker {
	if maxViolations <= 0 {
		maxViolations = DefaultMaxViolations
	}
	return &Checker{engine: e, max: maxViolations}
}

// Check returns the violated rules for one bid against one offer. It errors
// only when the offer does not exist; every other condition is reported,
// not thrown.
func (c *Checker) Check(ctx context.Context, offerID uint64, bid SignedBid) ([]apperrors.ErrorType, error) {
	e := c.engine
	offer, err := e.registry.Get(offerID)
	if err != nil {
		return nil, err
	}

	violations := make([]apperrors.ErrorType, 0, c.max)
	add := func(t apperrors.ErrorType) {
		if len(violations) < c.max {
			violations = append(violations, t)
		}
	}

	recovered := e.domain.RecoverSigner(&bid.Bid, bid.Signature)
	if recovered == (common.Address{}) {
		add(apperrors.ErrSignatureInvalid)
	} else if recovered != bid.SignerWallet {
		add(apperrors.ErrSignatureMismatched)
	}

	if e.nonces.IsUsed(bid.SignerWallet, bid.Nonce) {
		add(apperrors.ErrNonceUsed)
	}

	if !offer.IsOpen {
		add(apperrors.ErrOfferClosed)
	}
	if offer.AvailableSize.Sign() == 0 {
		add(apperrors.ErrZeroAvailable)
	}
	if bid.BuyAmount == nil || bid.BuyAmount.Sign() <= 0 {
		add(apperrors.ErrBidTooSmall)
		return violations, nil
	}
	if bid.BuyAmount.Cmp(offer.MinBidSize) < 0 {
		add(apperrors.ErrBidTooSmall)
	}
	if bid.SellAmount == nil {
		add(apperrors.ErrPriceTooLow)
		return violations, nil
	}

	decimals, err := e.assets.Decimals(ctx, offer.OfferedAsset)
	if err != nil {
		logger.Warn("check: decimals lookup failed", "error", err)
		return violations, nil
	}
	scale := pow10(decimals)

	bidPrice := new(big.Int).Mul(bid.SellAmount, scale)
	bidPrice.Div(bidPrice, bid.BuyAmount)
	if bidPrice.Cmp(offer.MinPrice) < 0 {
		add(apperrors.ErrPriceTooLow)
	}

	// Advisory funding checks against the clipped fill, the amount a
	// settlement call would actually pull.
	sellAmount, _ := fillAmounts(bid.SellAmount, bid.BuyAmount, bidPrice, offer.AvailableSize, scale)
	spender := e.domain.VerifyingContract()

	if balance, err := e.assets.BalanceOf(ctx, offer.BiddingAsset, bid.SignerWallet); err != nil {
		logger.Warn("check: balance lookup failed", "error", err)
	} else if balance.Cmp(sellAmount) < 0 {
		add(apperrors.ErrInsufficientBalance)
	}
	if allowance, err := e.assets.Allowance(ctx, offer.BiddingAsset, bid.SignerWallet, spender); err != nil {
		logger.Warn("check: allowance lookup failed", "error", err)
	} else if allowance.Cmp(sellAmount) < 0 {
		add(apperrors.ErrInsufficientAllowance)
	}

	return violations, nil
}

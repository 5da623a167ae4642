package engine

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swapgate/swapgate/internal/pkg/apperrors"
	"github.com/swapgate/swapgate/internal/signer"
)

func TestCheckCleanBid(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)
	checker := NewChecker(f.engine, 0)

	bid := f.signedBid(t, offer.ID, 1, 2*oneUnit, oneUnit)
	violations, err := checker.Check(context.Background(), offer.ID, bid)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestCheckUnknownOffer(t *testing.T) {
	f := newFixture(t)
	checker := NewChecker(f.engine, 0)

	bid := f.signedBid(t, 999, 1, oneUnit, oneUnit)
	_, err := checker.Check(context.Background(), 999, bid)
	assert.True(t, apperrors.Is(err, apperrors.ErrOfferNotFound))
}

func TestCheckAccumulatesViolations(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)
	ctx := context.Background()
	checker := NewChecker(f.engine, 0)

	_, err := f.engine.CloseOffer(ctx, offer.ID, sellerAddr)
	require.NoError(t, err)
	f.engine.CancelNonces(ctx, f.bidder.Address(), []uint64{1})

	// Used nonce, closed offer, sub-minimum size and sub-minimum price,
	// all reported in one pass.
	bid := f.signedBid(t, offer.ID, 1, oneUnit/100, oneUnit/20)
	violations, err := checker.Check(ctx, offer.ID, bid)
	require.NoError(t, err)

	assert.Contains(t, violations, apperrors.ErrNonceUsed)
	assert.Contains(t, violations, apperrors.ErrOfferClosed)
	assert.Contains(t, violations, apperrors.ErrBidTooSmall)
	assert.Contains(t, violations, apperrors.ErrPriceTooLow)
	assert.NotContains(t, violations, apperrors.ErrSignatureInvalid)
	assert.NotContains(t, violations, apperrors.ErrZeroAvailable)
}

func TestCheckSignatureViolations(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)
	ctx := context.Background()
	checker := NewChecker(f.engine, 0)

	bad := f.signedBid(t, offer.ID, 1, oneUnit, oneUnit)
	bad.Signature[64] = 99
	violations, err := checker.Check(ctx, offer.ID, bad)
	require.NoError(t, err)
	assert.Contains(t, violations, apperrors.ErrSignatureInvalid)

	tampered := f.signedBid(t, offer.ID, 1, oneUnit, oneUnit)
	tampered.Nonce = 2
	violations, err = checker.Check(ctx, offer.ID, tampered)
	require.NoError(t, err)
	assert.Contains(t, violations, apperrors.ErrSignatureMismatched)
}

func TestCheckAdvisoryFunding(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)
	ctx := context.Background()
	checker := NewChecker(f.engine, 0)

	// A wallet that never deposited or approved anything.
	brokeKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	broke := signer.FromKey(brokeKey, f.domain)

	bid := signer.Bid{
		OfferID:      offer.ID,
		Nonce:        1,
		SignerWallet: broke.Address(),
		SellAmount:   big.NewInt(oneUnit),
		BuyAmount:    big.NewInt(oneUnit),
	}
	sig, err := broke.SignBid(&bid)
	require.NoError(t, err)

	violations, err := checker.Check(ctx, offer.ID, SignedBid{Bid: bid, Signature: sig})
	require.NoError(t, err)
	assert.Contains(t, violations, apperrors.ErrInsufficientBalance)
	assert.Contains(t, violations, apperrors.ErrInsufficientAllowance)

	// Funding for the clipped fill is enough: a bid larger than the
	// remaining size only needs the clipped sell amount. The fixture
	// bidder holds 1000 units, well above the 10-unit clipped pull.
	oversized := f.signedBid(t, offer.ID, 2, 20*oneUnit, 20*oneUnit)
	violations, err = checker.Check(ctx, offer.ID, oversized)
	require.NoError(t, err)
	assert.NotContains(t, violations, apperrors.ErrInsufficientBalance)
	assert.NotContains(t, violations, apperrors.ErrInsufficientAllowance)
}

func TestCheckZeroAvailable(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)
	ctx := context.Background()
	checker := NewChecker(f.engine, 0)

	drain := f.signedBid(t, offer.ID, 1, 10*oneUnit, 10*oneUnit)
	_, err := f.engine.Settle(ctx, offer.ID, []SignedBid{drain}, sellerAddr)
	require.NoError(t, err)

	bid := f.signedBid(t, offer.ID, 2, oneUnit, oneUnit)
	violations, err := checker.Check(ctx, offer.ID, bid)
	require.NoError(t, err)
	assert.Contains(t, violations, apperrors.ErrZeroAvailable)
	assert.Contains(t, violations, apperrors.ErrOfferClosed)
}

func TestCheckViolationListIsBounded(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)
	ctx := context.Background()
	checker := NewChecker(f.engine, 2)

	_, err := f.engine.CloseOffer(ctx, offer.ID, sellerAddr)
	require.NoError(t, err)
	f.engine.CancelNonces(ctx, f.bidder.Address(), []uint64{1})

	bid := f.signedBid(t, offer.ID, 1, oneUnit/100, oneUnit/20)
	violations, err := checker.Check(ctx, offer.ID, bid)
	require.NoError(t, err)
	assert.Len(t, violations, 2)
}

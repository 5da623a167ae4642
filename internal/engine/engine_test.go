package engine

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swapgate/swapgate/internal/asset"
	"github.com/swapgate/swapgate/internal/events"
	"github.com/swapgate/swapgate/internal/ledger"
	"github.com/swapgate/swapgate/internal/pkg/apperrors"
	"github.com/swapgate/swapgate/internal/registry"
	"github.com/swapgate/swapgate/internal/signer"
)

var (
	engineAddr = common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	adminAddr  = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	sellerAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	refAddr    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	offeredTok = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	biddingTok = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

const oneUnit = 1_000_000 // 6-decimal asset

type captureSink struct {
	events []*events.Event
}

func (s *captureSink) Publish(_ context.Context, ev *events.Event) {
	s.events = append(s.events, ev)
}

func (s *captureSink) ofType(t events.Type) []*events.Event {
	out := make([]*events.Event, 0)
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	engine *Engine
	book   *asset.Book
	sink   *captureSink
	bidder *signer.Signer
	domain *signer.Domain
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	domain := signer.NewDomain(137, engineAddr)
	book := asset.NewBook(engineAddr)
	book.SetDecimals(offeredTok, 6)
	book.SetDecimals(biddingTok, 6)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	bidder := signer.FromKey(key, domain)

	fund := big.NewInt(1_000 * oneUnit)
	book.Mint(offeredTok, sellerAddr, fund)
	book.Approve(offeredTok, sellerAddr, engineAddr, fund)
	book.Mint(biddingTok, bidder.Address(), fund)
	book.Approve(biddingTok, bidder.Address(), engineAddr, fund)

	sink := &captureSink{}
	e := New(domain, registry.New(), ledger.New(), NewFeeTable(adminAddr), book, sink)
	return &fixture{engine: e, book: book, sink: sink, bidder: bidder, domain: domain}
}

// openOffer creates an offer selling offeredTok for biddingTok at a minimum
// price of 1.0 bidding units per offered unit.
func (f *fixture) openOffer(t *testing.T) *registry.Offer {
	t.Helper()
	offer, err := f.engine.CreateOffer(context.Background(), registry.CreateParams{
		Seller:       sellerAddr,
		OfferedAsset: offeredTok,
		BiddingAsset: biddingTok,
		MinPrice:     big.NewInt(oneUnit),
		MinBidSize:   big.NewInt(oneUnit / 10),
		TotalSize:    big.NewInt(10 * oneUnit),
	})
	require.NoError(t, err)
	return offer
}

func (f *fixture) signedBid(t *testing.T, offerID, nonce uint64, sell, buy int64) SignedBid {
	t.Helper()
	bid := signer.Bid{
		OfferID:      offerID,
		Nonce:        nonce,
		SignerWallet: f.bidder.Address(),
		SellAmount:   big.NewInt(sell),
		BuyAmount:    big.NewInt(buy),
	}
	sig, err := f.bidder.SignBid(&bid)
	require.NoError(t, err)
	return SignedBid{Bid: bid, Signature: sig}
}

func (f *fixture) balance(t *testing.T, token, owner common.Address) int64 {
	t.Helper()
	bal, err := f.book.BalanceOf(context.Background(), token, owner)
	require.NoError(t, err)
	return bal.Int64()
}

func TestSettleSingleBid(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)
	ctx := context.Background()

	// Buy 2 offered units at price 1.5.
	bid := f.signedBid(t, offer.ID, 1, 3*oneUnit, 2*oneUnit)
	fills, err := f.engine.Settle(ctx, offer.ID, []SignedBid{bid}, sellerAddr)
	require.NoError(t, err)
	require.Len(t, fills, 1)

	assert.Equal(t, int64(3*oneUnit), fills[0].SellAmount.Int64())
	assert.Equal(t, int64(2*oneUnit), fills[0].BuyAmount.Int64())
	assert.Equal(t, int64(0), fills[0].FeeAmount.Int64())

	assert.Equal(t, int64(2*oneUnit), f.balance(t, offeredTok, f.bidder.Address()))
	assert.Equal(t, int64(3*oneUnit), f.balance(t, biddingTok, sellerAddr))

	got, err := f.engine.GetOffer(offer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8*oneUnit), got.AvailableSize.Int64())
	assert.Equal(t, int64(3*oneUnit), got.TotalSales.Int64())
	assert.True(t, got.IsOpen)

	assert.True(t, f.engine.NonceUsed(f.bidder.Address(), 1))
	assert.Len(t, f.sink.ofType(events.TypeFillExecuted), 1)
}

func TestSettleExhaustsAndCloses(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)
	ctx := context.Background()

	bid := f.signedBid(t, offer.ID, 1, 10*oneUnit, 10*oneUnit)
	_, err := f.engine.Settle(ctx, offer.ID, []SignedBid{bid}, sellerAddr)
	require.NoError(t, err)

	got, _ := f.engine.GetOffer(offer.ID)
	assert.Equal(t, int64(0), got.AvailableSize.Int64())
	assert.False(t, got.IsOpen)
	assert.Len(t, f.sink.ofType(events.TypeOfferExhausted), 1)

	// Later settlements hit the closed gate before anything else.
	next := f.signedBid(t, offer.ID, 2, oneUnit, oneUnit)
	_, err = f.engine.Settle(ctx, offer.ID, []SignedBid{next}, sellerAddr)
	assert.True(t, apperrors.Is(err, apperrors.ErrOfferClosed))
}

func TestSettleClipsAtBidPrice(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)
	ctx := context.Background()

	// Drain all but one offered unit.
	first := f.signedBid(t, offer.ID, 1, 9*oneUnit, 9*oneUnit)
	_, err := f.engine.Settle(ctx, offer.ID, []SignedBid{first}, sellerAddr)
	require.NoError(t, err)

	// Bid for 2.0 at price 3.0 clips to the remaining 1.0 while keeping
	// the signed price: 1.0 bought for 3.0.
	over := f.signedBid(t, offer.ID, 2, 6*oneUnit, 2*oneUnit)
	fills, err := f.engine.Settle(ctx, offer.ID, []SignedBid{over}, sellerAddr)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, int64(oneUnit), fills[0].BuyAmount.Int64())
	assert.Equal(t, int64(3*oneUnit), fills[0].SellAmount.Int64())

	got, _ := f.engine.GetOffer(offer.ID)
	assert.Equal(t, int64(0), got.AvailableSize.Int64())
	assert.False(t, got.IsOpen)
	assert.Equal(t, int64(12*oneUnit), got.TotalSales.Int64())
}

func TestSettleReferralFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	offer, err := f.engine.CreateOffer(ctx, registry.CreateParams{
		Seller:       sellerAddr,
		OfferedAsset: offeredTok,
		BiddingAsset: biddingTok,
		MinPrice:     big.NewInt(oneUnit),
		MinBidSize:   big.NewInt(100),
		TotalSize:    big.NewInt(10 * oneUnit),
	})
	require.NoError(t, err)
	require.NoError(t, f.engine.SetFee(adminAddr, refAddr, 1000))

	bid := signer.Bid{
		OfferID:      offer.ID,
		Nonce:        1,
		SignerWallet: f.bidder.Address(),
		SellAmount:   big.NewInt(300),
		BuyAmount:    big.NewInt(300),
		Referrer:     refAddr,
	}
	sig, err := f.bidder.SignBid(&bid)
	require.NoError(t, err)

	sellerBefore := f.balance(t, biddingTok, sellerAddr)
	fills, err := f.engine.Settle(ctx, offer.ID, []SignedBid{{Bid: bid, Signature: sig}}, sellerAddr)
	require.NoError(t, err)
	require.Len(t, fills, 1)

	// 1000 bps of 300: 30 to the referrer, 270 to the seller.
	assert.Equal(t, int64(30), fills[0].FeeAmount.Int64())
	assert.Equal(t, int64(30), f.balance(t, biddingTok, refAddr))
	assert.Equal(t, sellerBefore+270, f.balance(t, biddingTok, sellerAddr))
}

func TestSettleBatchIsAtomic(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)
	ctx := context.Background()

	sellerBidding := f.balance(t, biddingTok, sellerAddr)
	bidderOffered := f.balance(t, offeredTok, f.bidder.Address())

	good := f.signedBid(t, offer.ID, 7, 2*oneUnit, 2*oneUnit)
	dup := f.signedBid(t, offer.ID, 7, oneUnit, oneUnit)

	_, err := f.engine.Settle(ctx, offer.ID, []SignedBid{good, dup}, sellerAddr)
	assert.True(t, apperrors.Is(err, apperrors.ErrNonceUsed))

	// The first bid's effects must not survive the batch failure.
	assert.Equal(t, sellerBidding, f.balance(t, biddingTok, sellerAddr))
	assert.Equal(t, bidderOffered, f.balance(t, offeredTok, f.bidder.Address()))
	assert.False(t, f.engine.NonceUsed(f.bidder.Address(), 7))

	got, _ := f.engine.GetOffer(offer.ID)
	assert.Equal(t, int64(10*oneUnit), got.AvailableSize.Int64())
	assert.Equal(t, int64(0), got.TotalSales.Int64())
	assert.Empty(t, f.sink.ofType(events.TypeFillExecuted))
}

func TestSettleRejectsNonceReplayAcrossCalls(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)
	ctx := context.Background()

	bid := f.signedBid(t, offer.ID, 5, oneUnit, oneUnit)
	_, err := f.engine.Settle(ctx, offer.ID, []SignedBid{bid}, sellerAddr)
	require.NoError(t, err)

	replay := f.signedBid(t, offer.ID, 5, 2*oneUnit, oneUnit)
	_, err = f.engine.Settle(ctx, offer.ID, []SignedBid{replay}, sellerAddr)
	assert.True(t, apperrors.Is(err, apperrors.ErrNonceUsed))
}

func TestSettleSignatureChecks(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)
	ctx := context.Background()

	// Garbage recovery id: recovery yields nothing.
	bad := f.signedBid(t, offer.ID, 1, oneUnit, oneUnit)
	bad.Signature[64] = 99
	_, err := f.engine.Settle(ctx, offer.ID, []SignedBid{bad}, sellerAddr)
	assert.True(t, apperrors.Is(err, apperrors.ErrSignatureInvalid))

	// Tampered field: recovery yields a different wallet.
	tampered := f.signedBid(t, offer.ID, 1, oneUnit, oneUnit)
	tampered.SellAmount = big.NewInt(2 * oneUnit)
	_, err = f.engine.Settle(ctx, offer.ID, []SignedBid{tampered}, sellerAddr)
	assert.True(t, apperrors.Is(err, apperrors.ErrSignatureMismatched))

	// Signed by someone other than the declared wallet.
	otherKey, _ := crypto.GenerateKey()
	other := signer.FromKey(otherKey, f.domain)
	bid := signer.Bid{
		OfferID:      offer.ID,
		Nonce:        1,
		SignerWallet: f.bidder.Address(),
		SellAmount:   big.NewInt(oneUnit),
		BuyAmount:    big.NewInt(oneUnit),
	}
	sig, _ := other.SignBid(&bid)
	_, err = f.engine.Settle(ctx, offer.ID, []SignedBid{{Bid: bid, Signature: sig}}, sellerAddr)
	assert.True(t, apperrors.Is(err, apperrors.ErrSignatureMismatched))
}

func TestSettleCallerMustBeSeller(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)

	bid := f.signedBid(t, offer.ID, 1, oneUnit, oneUnit)
	_, err := f.engine.Settle(context.Background(), offer.ID, []SignedBid{bid}, f.bidder.Address())
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}

func TestSettleSizeAndPriceGates(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)
	ctx := context.Background()

	small := f.signedBid(t, offer.ID, 1, oneUnit, oneUnit/20)
	_, err := f.engine.Settle(ctx, offer.ID, []SignedBid{small}, sellerAddr)
	assert.True(t, apperrors.Is(err, apperrors.ErrBidTooSmall))

	cheap := f.signedBid(t, offer.ID, 2, oneUnit/2, oneUnit)
	_, err = f.engine.Settle(ctx, offer.ID, []SignedBid{cheap}, sellerAddr)
	assert.True(t, apperrors.Is(err, apperrors.ErrPriceTooLow))
}

func TestSettleUnknownOffer(t *testing.T) {
	f := newFixture(t)
	bid := f.signedBid(t, 999, 1, oneUnit, oneUnit)
	_, err := f.engine.Settle(context.Background(), 999, []SignedBid{bid}, sellerAddr)
	assert.True(t, apperrors.Is(err, apperrors.ErrOfferNotFound))
}

func TestSettleTransferFailureAborts(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)
	ctx := context.Background()

	// Revoke the bidder's allowance so the bidding-asset leg fails.
	f.book.Approve(biddingTok, f.bidder.Address(), engineAddr, big.NewInt(0))

	bid := f.signedBid(t, offer.ID, 1, oneUnit, oneUnit)
	_, err := f.engine.Settle(ctx, offer.ID, []SignedBid{bid}, sellerAddr)
	assert.True(t, apperrors.Is(err, apperrors.ErrTransferFailed))

	// The offered-asset leg ran first inside the transaction; none of it
	// may be visible.
	assert.Equal(t, int64(0), f.balance(t, offeredTok, f.bidder.Address()))
	got, _ := f.engine.GetOffer(offer.ID)
	assert.Equal(t, int64(10*oneUnit), got.AvailableSize.Int64())
}

func TestCancelNonces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wallet := f.bidder.Address()

	cancelled := f.engine.CancelNonces(ctx, wallet, []uint64{1, 2, 3})
	assert.Equal(t, []uint64{1, 2, 3}, cancelled)
	assert.Len(t, f.sink.ofType(events.TypeNonceCancelled), 3)

	// Already-consumed nonces drop out silently.
	cancelled = f.engine.CancelNonces(ctx, wallet, []uint64{2, 3, 4})
	assert.Equal(t, []uint64{4}, cancelled)
	assert.Len(t, f.sink.ofType(events.TypeNonceCancelled), 4)

	// A cancelled nonce can never settle.
	offer := f.openOffer(t)
	bid := f.signedBid(t, offer.ID, 1, oneUnit, oneUnit)
	_, err := f.engine.Settle(ctx, offer.ID, []SignedBid{bid}, sellerAddr)
	assert.True(t, apperrors.Is(err, apperrors.ErrNonceUsed))
}

func TestCloseOfferEmitsEvent(t *testing.T) {
	f := newFixture(t)
	offer := f.openOffer(t)

	closed, err := f.engine.CloseOffer(context.Background(), offer.ID, sellerAddr)
	require.NoError(t, err)
	assert.False(t, closed.IsOpen)
	assert.Len(t, f.sink.ofType(events.TypeOfferClosed), 1)
}

func TestFeeTableAuthorization(t *testing.T) {
	table := NewFeeTable(adminAddr)

	err := table.Set(sellerAddr, refAddr, 100)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	err = table.Set(adminAddr, common.Address{}, 100)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))

	err = table.Set(adminAddr, refAddr, FeeDivisor)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))

	assert.NoError(t, table.Set(adminAddr, refAddr, 250))
	assert.Equal(t, uint16(250), table.FeeOf(refAddr))
	assert.Equal(t, uint16(0), table.FeeOf(common.Address{}))
	assert.Equal(t, uint16(0), table.FeeOf(sellerAddr))

	// Rates are replaceable, including back to zero.
	assert.NoError(t, table.Set(adminAddr, refAddr, 0))
	assert.Equal(t, uint16(0), table.FeeOf(refAddr))
}

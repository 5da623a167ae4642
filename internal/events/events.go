package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/swapgate/swapgate/internal/pkg/logger"
	"github.com/swapgate/swapgate/internal/registry"
)

type Type string

const (
	TypeOfferCreated   Type = "offer_created"
	TypeOfferClosed    Type = "offer_closed"
	TypeFillExecuted   Type = "fill_executed"
	TypeOfferExhausted Type = "offer_exhausted"
	TypeNonceCancelled Type = "nonce_cancelled"
)

// Event is the external indexing surface. Payload fields carry the literal
// field set of the emitting operation; nothing in the engine reads them back.
type Event struct {
	ID      string         `json:"id"`
	Type    Type           `json:"type"`
	OfferID uint64         `json:"offer_id,omitempty"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}

func newEvent(t Type, offerID uint64, payload map[string]any) *Event {
	return &Event{
		ID:      uuid.NewString(),
		Type:    t,
		OfferID: offerID,
		Payload: payload,
		At:      time.Now().UTC(),
	}
}

func NewOfferCreated(o *registry.Offer) *Event {
	return newEvent(TypeOfferCreated, o.ID, map[string]any{
		"seller":         o.Seller.Hex(),
		"offered_asset":  o.OfferedAsset.Hex(),
		"bidding_asset":  o.BiddingAsset.Hex(),
		"min_price":      o.MinPrice.String(),
		"min_bid_size":   o.MinBidSize.String(),
		"total_size":     o.TotalSize.String(),
		"available_size": o.AvailableSize.String(),
	})
}

func NewOfferClosed(o *registry.Offer) *Event {
	return newEvent(TypeOfferClosed, o.ID, map[string]any{
		"seller": o.Seller.Hex(),
	})
}

func NewOfferExhausted(o *registry.Offer) *Event {
	return newEvent(TypeOfferExhausted, o.ID, map[string]any{
		"seller":      o.Seller.Hex(),
		"total_sales": o.TotalSales.String(),
	})
}

func NewFillExecuted(offerID, nonce uint64, signerWallet, sellAmount, seller, buyAmount, referrer, feeAmount string) *Event {
	return newEvent(TypeFillExecuted, offerID, map[string]any{
		"nonce":         nonce,
		"signer_wallet": signerWallet,
		"sell_amount":   sellAmount,
		"seller":        seller,
		"buy_amount":    buyAmount,
		"referrer":      referrer,
		"fee_amount":    feeAmount,
	})
}

func NewNonceCancelled(signerWallet string, nonce uint64) *Event {
	return newEvent(TypeNonceCancelled, 0, map[string]any{
		"signer_wallet": signerWallet,
		"nonce":         nonce,
	})
}

// Sink consumes committed events. Publish must not fail the settlement path;
// implementations log and drop on error.
type Sink interface {
	Publish(ctx context.Context, ev *Event)
}

// LogSink writes every event to the structured log.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, ev *Event) {
	logger.Info("event", "type", string(ev.Type), "offer_id", ev.OfferID, "payload", ev.Payload)
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, ev *Event) {
	for _, s := range m {
		s.Publish(ctx, ev)
	}
}

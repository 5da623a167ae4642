package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/swapgate/swapgate/internal/registry"
)

// Amounts cross the API as decimal strings of base units (uint256
// semantics); responses also carry a humanized rendering scaled by the
// asset's decimals.

type CreateOfferRequest struct {
	Seller       string `json:"seller" binding:"required"`
	OfferedAsset string `json:"offered_asset" binding:"required"`
	BiddingAsset string `json:"bidding_asset" binding:"required"`
	MinPrice     string `json:"min_price" binding:"required"`
	MinBidSize   string `json:"min_bid_size" binding:"required"`
	TotalSize    string `json:"total_size" binding:"required"`
}

type OfferResponse struct {
	ID            uint64 `json:"id"`
	Seller        string `json:"seller"`
	OfferedAsset  string `json:"offered_asset"`
	BiddingAsset  string `json:"bidding_asset"`
	MinPrice      string `json:"min_price"`
	MinBidSize    string `json:"min_bid_size"`
	TotalSize     string `json:"total_size"`
	AvailableSize string `json:"available_size"`
	// AvailableSizeHuman is AvailableSize scaled by the offered asset's
	// decimals, for display only.
	AvailableSizeHuman string `json:"available_size_human,omitempty"`
	TotalSales         string `json:"total_sales"`
	IsOpen             bool   `json:"is_open"`
}

func NewOfferResponse(o *registry.Offer, offeredDecimals *uint8) OfferResponse {
	resp := OfferResponse{
		ID:            o.ID,
		Seller:        o.Seller.Hex(),
		OfferedAsset:  o.OfferedAsset.Hex(),
		BiddingAsset:  o.BiddingAsset.Hex(),
		MinPrice:      o.MinPrice.String(),
		MinBidSize:    o.MinBidSize.String(),
		TotalSize:     o.TotalSize.String(),
		AvailableSize: o.AvailableSize.String(),
		TotalSales:    o.TotalSales.String(),
		IsOpen:        o.IsOpen,
	}
	if offeredDecimals != nil {
		resp.AvailableSizeHuman = decimal.NewFromBigInt(o.AvailableSize, -int32(*offeredDecimals)).String()
	}
	return resp
}

type BidPayload struct {
	Nonce        uint64 `json:"nonce"`
	SignerWallet string `json:"signer_wallet" binding:"required"`
	SellAmount   string `json:"sell_amount" binding:"required"`
	BuyAmount    string `json:"buy_amount" binding:"required"`
	Referrer     string `json:"referrer,omitempty"`
	Signature    string `json:"signature" binding:"required"`
}

type SettleRequest struct {
	Caller string       `json:"caller" binding:"required"`
	Bids   []BidPayload `json:"bids" binding:"required,min=1"`
}

type FillResponse struct {
	OfferID      uint64 `json:"offer_id"`
	Nonce        uint64 `json:"nonce"`
	SignerWallet string `json:"signer_wallet"`
	Seller       string `json:"seller"`
	SellAmount   string `json:"sell_amount"`
	BuyAmount    string `json:"buy_amount"`
	Referrer     string `json:"referrer"`
	FeeAmount    string `json:"fee_amount"`
}

type SettleResponse struct {
	Fills         []FillResponse `json:"fills"`
	AvailableSize string         `json:"available_size"`
	IsOpen        bool           `json:"is_open"`
}

type CheckRequest struct {
	Bid BidPayload `json:"bid" binding:"required"`
}

type CheckResponse struct {
	Count      int      `json:"count"`
	Violations []string `json:"violations"`
}

type CancelNoncesRequest struct {
	Caller string   `json:"caller" binding:"required"`
	Nonces []uint64 `json:"nonces" binding:"required,min=1"`
}

type CancelNoncesResponse struct {
	Cancelled []uint64 `json:"cancelled"`
}

type SetFeeRequest struct {
	Caller   string `json:"caller" binding:"required"`
	Referrer string `json:"referrer" binding:"required"`
	FeeBps   uint16 `json:"fee_bps"`
}

// ParseAddress rejects anything that is not a well-formed hex address.
func ParseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address", field)
	}
	return common.HexToAddress(value), nil
}

// ParseOptionalAddress maps the empty string to the zero address.
func ParseOptionalAddress(field, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, nil
	}
	return ParseAddress(field, value)
}

// ParseAmount parses a non-negative base-unit integer amount.
func ParseAmount(field, value string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s amount", field)
	}
	return v, nil
}

// ParseSignature decodes a 0x-prefixed 65-byte signature.
func ParseSignature(value string) ([]byte, error) {
	sig, err := hexutil.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding")
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("invalid signature length")
	}
	return sig, nil
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/swapgate/swapgate/internal/engine"
	"github.com/swapgate/swapgate/internal/model"
	"github.com/swapgate/swapgate/internal/pkg/apperrors"
	"github.com/swapgate/swapgate/internal/signer"
)

type SettleHandler struct {
	eng     *engine.Engine
	checker *engine.Checker
}

func NewSettleHandler(eng *engine.Engine, checker *engine.Checker) *SettleHandler {
	return &SettleHandler{eng: eng, checker: checker}
}

func (h *SettleHandler) Settle(c *gin.Context) {
	offerID, err := parseOfferID(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req model.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	caller, err := model.ParseAddress("caller", req.Caller)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	bids, err := parseBids(offerID, req.Bids)
	if err != nil {
		c.Error(err)
		return
	}

	fills, err := h.eng.Settle(c.Request.Context(), offerID, bids, caller)
	if err != nil {
		c.Error(err)
		return
	}

	offer, err := h.eng.GetOffer(offerID)
	if err != nil {
		c.Error(err)
		return
	}

	resp := model.SettleResponse{
		Fills:         make([]model.FillResponse, 0, len(fills)),
		AvailableSize: offer.AvailableSize.String(),
		IsOpen:        offer.IsOpen,
	}
	for _, f := range fills {
		resp.Fills = append(resp.Fills, model.FillResponse{
			OfferID:      f.OfferID,
			Nonce:        f.Nonce,
			SignerWallet: f.SignerWallet.Hex(),
			Seller:       f.Seller.Hex(),
			SellAmount:   f.SellAmount.String(),
			BuyAmount:    f.BuyAmount.String(),
			Referrer:     f.Referrer.Hex(),
			FeeAmount:    f.FeeAmount.String(),
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SettleHandler) Check(c *gin.Context) {
	offerID, err := parseOfferID(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req model.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	bids, err := parseBids(offerID, []model.BidPayload{req.Bid})
	if err != nil {
		c.Error(err)
		return
	}

	violations, err := h.checker.Check(c.Request.Context(), offerID, bids[0])
	if err != nil {
		c.Error(err)
		return
	}

	resp := model.CheckResponse{
		Count:      len(violations),
		Violations: make([]string, 0, len(violations)),
	}
	for _, v := range violations {
		resp.Violations = append(resp.Violations, string(v))
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SettleHandler) CancelNonces(c *gin.Context) {
	var req model.CancelNoncesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	caller, err := model.ParseAddress("caller", req.Caller)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	cancelled := h.eng.CancelNonces(c.Request.Context(), caller, req.Nonces)
	c.JSON(http.StatusOK, model.CancelNoncesResponse{Cancelled: cancelled})
}

func parseBids(offerID uint64, payloads []model.BidPayload) ([]engine.SignedBid, error) {
	bids := make([]engine.SignedBid, 0, len(payloads))
	for i, p := range payloads {
		wallet, err := model.ParseAddress("signer_wallet", p.SignerWallet)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "bid %d: %v", i, err)
		}
		referrer, err := model.ParseOptionalAddress("referrer", p.Referrer)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "bid %d: %v", i, err)
		}
		sellAmount, err := model.ParseAmount("sell_amount", p.SellAmount)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "bid %d: %v", i, err)
		}
		buyAmount, err := model.ParseAmount("buy_amount", p.BuyAmount)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "bid %d: %v", i, err)
		}
		sig, err := model.ParseSignature(p.Signature)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "bid %d: %v", i, err)
		}

		bids = append(bids, engine.SignedBid{
			Bid: signer.Bid{
				OfferID:      offerID,
				Nonce:        p.Nonce,
				SignerWallet: wallet,
				SellAmount:   sellAmount,
				BuyAmount:    buyAmount,
				Referrer:     referrer,
			},
			Signature: sig,
		})
	}
	return bids, nil
}

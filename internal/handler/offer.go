package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/swapgate/swapgate/internal/asset"
	"github.com/swapgate/swapgate/internal/engine"
	"github.com/swapgate/swapgate/internal/model"
	"github.com/swapgate/swapgate/internal/pkg/apperrors"
	"github.com/swapgate/swapgate/internal/registry"
)

type OfferHandler struct {
	eng    *engine.Engine
	assets asset.Service
}

func NewOfferHandler(eng *engine.Engine, assets asset.Service) *OfferHandler {
	return &OfferHandler{eng: eng, assets: assets}
}

func (h *OfferHandler) Create(c *gin.Context) {
	var req model.CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	seller, err := model.ParseAddress("seller", req.Seller)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	offeredAsset, err := model.ParseAddress("offered_asset", req.OfferedAsset)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	biddingAsset, err := model.ParseAddress("bidding_asset", req.BiddingAsset)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	minPrice, err := model.ParseAmount("min_price", req.MinPrice)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	minBidSize, err := model.ParseAmount("min_bid_size", req.MinBidSize)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	totalSize, err := model.ParseAmount("total_size", req.TotalSize)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	offer, err := h.eng.CreateOffer(c.Request.Context(), registry.CreateParams{
		Seller:       seller,
		OfferedAsset: offeredAsset,
		BiddingAsset: biddingAsset,
		MinPrice:     minPrice,
		MinBidSize:   minBidSize,
		TotalSize:    totalSize,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, h.offerResponse(c, offer))
}

func (h *OfferHandler) Get(c *gin.Context) {
	id, err := parseOfferID(c)
	if err != nil {
		c.Error(err)
		return
	}

	offer, err := h.eng.GetOffer(id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, h.offerResponse(c, offer))
}

func (h *OfferHandler) Close(c *gin.Context) {
	id, err := parseOfferID(c)
	if err != nil {
		c.Error(err)
		return
	}
	caller, err := model.ParseAddress("caller", c.Query("caller"))
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	offer, err := h.eng.CloseOffer(c.Request.Context(), id, caller)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, h.offerResponse(c, offer))
}

func (h *OfferHandler) offerResponse(c *gin.Context, offer *registry.Offer) model.OfferResponse {
	var decimalsPtr *uint8
	if d, err := h.assets.Decimals(c.Request.Context(), offer.OfferedAsset); err == nil {
		decimalsPtr = &d
	}
	return model.NewOfferResponse(offer, decimalsPtr)
}

func parseOfferID(c *gin.Context) (uint64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.NewInvalidRequest("invalid offer id")
	}
	return id, nil
}

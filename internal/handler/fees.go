package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/swapgate/swapgate/internal/engine"
	"github.com/swapgate/swapgate/internal/model"
	"github.com/swapgate/swapgate/internal/pkg/apperrors"
)

type FeeHandler struct {
	eng *engine.Engine
}

func NewFeeHandler(eng *engine.Engine) *FeeHandler {
	return &FeeHandler{eng: eng}
}

// Set updates a referrer's fee rate. Routed behind the admin-key middleware;
// the engine additionally checks the caller against its stored admin
// identity.
func (h *FeeHandler) Set(c *gin.Context) {
	var req model.SetFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	caller, err := model.ParseAddress("caller", req.Caller)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	referrer, err := model.ParseAddress("referrer", req.Referrer)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	if err := h.eng.SetFee(caller, referrer, req.FeeBps); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"referrer": referrer.Hex(),
		"fee_bps":  req.FeeBps,
	})
}

// Get returns the current rate for one referrer.
func (h *FeeHandler) Get(c *gin.Context) {
	referrer, err := model.ParseAddress("referrer", c.Param("referrer"))
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"referrer": referrer.Hex(),
		"fee_bps":  h.eng.FeeOf(referrer),
	})
}

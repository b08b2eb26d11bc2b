package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

const (
	signatureHeader  = "Stripe-Signature"
	manualRateSource = "manual"
)

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, fmt.Errorf("%w: %v", errMalformedBody, err))
		return false
	}
	return true
}

func (h *handler) createPaymentIntent(c *gin.Context) {
	var body checkoutPayload
	if !bindJSON(c, &body) {
		return
	}
	res, err := h.engine.CreatePaymentIntent(c.Request.Context(), body.toDomain())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newIntentResponse(res))
}

func (h *handler) confirmOrder(c *gin.Context) {
	var body confirmPayload
	if !bindJSON(c, &body) {
		return
	}
	res, err := h.engine.ConfirmOrder(c.Request.Context(), body.PaymentIntentID, body.checkoutPayload.toDomain())
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, confirmResponse{Created: res.Created, Order: newOrderResponse(res.Order)})
}

// webhook читает сырое тело: подпись считается по байтам, а не по разобранному JSON.
func (h *handler) webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		writeError(c, fmt.Errorf("%w: %v", errMalformedBody, err))
		return
	}
	if err := h.engine.HandleWebhook(c.Request.Context(), payload, c.GetHeader(signatureHeader)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *handler) createTransferOrder(c *gin.Context) {
	var body checkoutPayload
	if !bindJSON(c, &body) {
		return
	}
	res, err := h.engine.CreateTransferOrder(c.Request.Context(), body.toDomain())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTransferResponse(res))
}

func (h *handler) getOrder(c *gin.Context) {
	order, err := h.engine.GetOrder(c.Request.Context(), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *handler) paymentStatus(c *gin.Context) {
	view, err := h.engine.PaymentStatus(c.Request.Context(), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPaymentStatusResponse(view))
}

// confirmTransfer принимает либо order_number, либо список order_numbers.
func (h *handler) confirmTransfer(c *gin.Context) {
	var body confirmTransferPayload
	if !bindJSON(c, &body) {
		return
	}

	if len(body.OrderNumbers) > 0 {
		res, err := h.engine.ConfirmManualBatch(c.Request.Context(), body.OrderNumbers)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newBatchResponse(res))
		return
	}

	if strings.TrimSpace(body.OrderNumber) == "" {
		writeError(c, domain.NewValidationError("order_number", "order_number or order_numbers is required"))
		return
	}
	res, err := h.engine.ConfirmManual(c.Request.Context(), body.OrderNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, manualResponse{
		Success: res.Success,
		Outcome: string(res.Outcome),
		Order:   newOrderResponse(res.Order),
	})
}

func (h *handler) cancelOrder(c *gin.Context) {
	order, err := h.engine.CancelOrder(c.Request.Context(), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *handler) completeOrder(c *gin.Context) {
	order, err := h.engine.CompleteOrder(c.Request.Context(), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *handler) rateInfo(c *gin.Context) {
	if h.rates == nil {
		writeError(c, domain.ErrCurrencyUnavailable)
		return
	}
	info, err := h.rates.Info(c.Request.Context(), c.Param("base"), c.Param("target"))
	if err != nil {
		if errors.Is(err, domain.ErrCurrencyUnavailable) {
			c.AbortWithStatusJSON(http.StatusNotFound, errorBody{Error: errorDetail{
				Code:    "rate_not_found",
				Message: "no exchange rate recorded for this pair",
			}})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRateInfoResponse(info))
}

func (h *handler) recordRate(c *gin.Context) {
	if h.rates == nil {
		writeError(c, domain.ErrCurrencyUnavailable)
		return
	}
	var body recordRatePayload
	if !bindJSON(c, &body) {
		return
	}
	if body.Base == "" {
		body.Base = "USD"
	}
	if body.Target == "" {
		body.Target = "HKD"
	}
	if body.Source == "" {
		body.Source = manualRateSource
	}
	record, err := h.rates.Record(c.Request.Context(), body.Base, body.Target, body.Rate, body.Source)
	if err != nil {
		writeError(c, err)
		return
	}
	h.logger.WithField("pair", record.Pair()).Info("exchange rate recorded via admin api")
	c.JSON(http.StatusCreated, newRateResponse(record))
}

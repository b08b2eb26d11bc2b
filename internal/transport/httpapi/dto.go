package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/service/currency"
	"github.com/vladislavdragonenkov/florist/internal/service/reconcile"
)

type customerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type cartLinePayload struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

// checkoutPayload — тело оформления заказа. Цены от клиента не принимаются.
type checkoutPayload struct {
	Customer        customerPayload   `json:"customer"`
	DeliveryAddress string            `json:"delivery_address"`
	DeliveryDate    string            `json:"delivery_date"`
	DeliveryNotes   string            `json:"delivery_notes"`
	Language        string            `json:"language"`
	PaymentMethod   string            `json:"payment_method"`
	Items           []cartLinePayload `json:"items"`
}

func (p checkoutPayload) toDomain() domain.CheckoutRequest {
	items := make([]domain.CartLine, 0, len(p.Items))
	for _, line := range p.Items {
		items = append(items, domain.CartLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return domain.CheckoutRequest{
		Customer: domain.Customer{
			Name:  p.Customer.Name,
			Email: p.Customer.Email,
			Phone: p.Customer.Phone,
		},
		DeliveryAddress: p.DeliveryAddress,
		DeliveryDate:    p.DeliveryDate,
		DeliveryNotes:   p.DeliveryNotes,
		Language:        domain.Language(p.Language),
		PaymentMethod:   domain.PaymentMethod(p.PaymentMethod),
		Items:           items,
	}
}

type confirmPayload struct {
	PaymentIntentID string `json:"payment_intent_id"`
	checkoutPayload
}

type confirmTransferPayload struct {
	OrderNumber  string   `json:"order_number"`
	OrderNumbers []string `json:"order_numbers"`
}

type recordRatePayload struct {
	Base   string          `json:"base"`
	Target string          `json:"target"`
	Rate   decimal.Decimal `json:"rate"`
	Source string          `json:"source"`
}

type itemResponse struct {
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Quantity       int32  `json:"quantity"`
	LineTotalMinor int64  `json:"line_total_minor"`
}

type deliveryResponse struct {
	Address string `json:"address"`
	Date    string `json:"date"`
	Notes   string `json:"notes,omitempty"`
}

type orderResponse struct {
	OrderNumber          string           `json:"order_number"`
	Status               string           `json:"status"`
	PaymentStatus        string           `json:"payment_status"`
	PaymentMethod        string           `json:"payment_method"`
	PaymentReference     string           `json:"payment_intent_id,omitempty"`
	Customer             customerPayload  `json:"customer"`
	Delivery             deliveryResponse `json:"delivery"`
	Language             string           `json:"language"`
	Currency             string           `json:"currency"`
	SubtotalMinor        int64            `json:"subtotal_minor"`
	DeliveryFeeMinor     int64            `json:"delivery_fee_minor"`
	DiscountMinor        int64            `json:"discount_minor"`
	TotalMinor           int64            `json:"total_minor"`
	SettlementCurrency   string           `json:"settlement_currency,omitempty"`
	SettlementTotalMinor int64            `json:"settlement_total_minor,omitempty"`
	ExchangeRate         string           `json:"exchange_rate,omitempty"`
	Items                []itemResponse   `json:"items"`
	CreatedAt            time.Time        `json:"created_at"`
	PaidAt               *time.Time       `json:"paid_at,omitempty"`
	ConfirmedAt          *time.Time       `json:"confirmed_at,omitempty"`
}

func newOrderResponse(order domain.Order) orderResponse {
	items := make([]itemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, itemResponse{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPriceMinor: item.UnitPriceMinor,
			Quantity:       item.Quantity,
			LineTotalMinor: item.LineTotalMinor,
		})
	}
	resp := orderResponse{
		OrderNumber:      order.Number,
		Status:           string(order.LifecycleStatus()),
		PaymentStatus:    string(order.PaymentStatus()),
		PaymentMethod:    string(order.PaymentMethod),
		PaymentReference: order.PaymentReference,
		Customer: customerPayload{
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		Delivery: deliveryResponse{
			Address: order.Delivery.Address,
			Date:    order.Delivery.Date.Format("2006-01-02"),
			Notes:   order.Delivery.Notes,
		},
		Language:         string(order.Language),
		Currency:         order.Currency,
		SubtotalMinor:    order.SubtotalMinor,
		DeliveryFeeMinor: order.DeliveryFeeMinor,
		DiscountMinor:    order.DiscountMinor,
		TotalMinor:       order.TotalMinor,
		Items:            items,
		CreatedAt:        order.CreatedAt,
		PaidAt:           optionalTime(order.PaidAt),
		ConfirmedAt:      optionalTime(order.ConfirmedAt),
	}
	if order.SettlementCurrency != "" && order.SettlementCurrency != order.Currency {
		resp.SettlementCurrency = order.SettlementCurrency
		resp.SettlementTotalMinor = order.SettlementTotalMinor
		resp.ExchangeRate = order.ExchangeRate.String()
	}
	return resp
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type intentResponse struct {
	PaymentIntentID       string `json:"payment_intent_id"`
	ClientSecret          string `json:"client_secret"`
	DisplayAmountMinor    int64  `json:"display_amount_minor"`
	DisplayCurrency       string `json:"display_currency"`
	SettlementAmountMinor int64  `json:"settlement_amount_minor"`
	SettlementCurrency    string `json:"settlement_currency"`
	ExchangeRate          string `json:"exchange_rate,omitempty"`
}

func newIntentResponse(res reconcile.IntentResult) intentResponse {
	resp := intentResponse{
		PaymentIntentID:       res.Reference,
		ClientSecret:          res.ClientSecret,
		DisplayAmountMinor:    res.DisplayAmountMinor,
		DisplayCurrency:       res.DisplayCurrency,
		SettlementAmountMinor: res.SettlementAmountMinor,
		SettlementCurrency:    res.SettlementCurrency,
	}
	if res.ExchangeRate.IsPositive() {
		resp.ExchangeRate = res.ExchangeRate.String()
	}
	return resp
}

type confirmResponse struct {
	Created bool          `json:"created"`
	Order   orderResponse `json:"order"`
}

type transferInstructionsResponse struct {
	Link        string `json:"payme_link"`
	QRCodeURL   string `json:"qr_code_url"`
	Memo        string `json:"memo"`
	PayeePhone  string `json:"payee_phone,omitempty"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type transferResponse struct {
	Order   orderResponse                `json:"order"`
	Payment transferInstructionsResponse `json:"payment"`
}

func newTransferResponse(res reconcile.TransferOrder) transferResponse {
	return transferResponse{
		Order: newOrderResponse(res.Order),
		Payment: transferInstructionsResponse{
			Link:        res.Instructions.Link,
			QRCodeURL:   res.Instructions.QRCodeURL,
			Memo:        res.Instructions.Memo,
			PayeePhone:  res.Instructions.PayeePhone,
			AmountMinor: res.Instructions.AmountMinor,
			Currency:    res.Instructions.Currency,
		},
	}
}

type paymentStatusResponse struct {
	OrderNumber   string     `json:"order_number"`
	PaymentStatus string     `json:"payment_status"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"payment_method"`
	TotalMinor    int64      `json:"total_minor"`
	Currency      string     `json:"currency"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

func newPaymentStatusResponse(view reconcile.PaymentStatusView) paymentStatusResponse {
	return paymentStatusResponse{
		OrderNumber:   view.OrderNumber,
		PaymentStatus: string(view.PaymentStatus),
		Status:        string(view.Status),
		PaymentMethod: string(view.PaymentMethod),
		TotalMinor:    view.TotalMinor,
		Currency:      view.Currency,
		PaidAt:        optionalTime(view.PaidAt),
	}
}

type manualResponse struct {
	Success bool          `json:"success"`
	Outcome string        `json:"outcome"`
	Order   orderResponse `json:"order"`
}

type batchItemResponse struct {
	OrderNumber string       `json:"order_number"`
	Success     bool         `json:"success"`
	Outcome     string       `json:"outcome,omitempty"`
	Error       *errorDetail `json:"error,omitempty"`
}

type batchResponse struct {
	Confirmed int                 `json:"confirmed"`
	Skipped   int                 `json:"skipped"`
	Warnings  int                 `json:"warnings"`
	Failed    int                 `json:"failed"`
	Results   []batchItemResponse `json:"results"`
}

func newBatchResponse(res reconcile.BatchResult) batchResponse {
	out := batchResponse{
		Confirmed: res.Confirmed,
		Skipped:   res.Skipped,
		Warnings:  res.Warnings,
		Failed:    res.Failed,
		Results:   make([]batchItemResponse, 0, len(res.Items)),
	}
	for _, item := range res.Items {
		entry := batchItemResponse{
			OrderNumber: item.OrderNumber,
			Success:     item.Result.Success,
			Outcome:     string(item.Result.Outcome),
		}
		if item.Err != nil {
			_, detail := classify(item.Err)
			entry.Error = &detail
		}
		out.Results = append(out.Results, entry)
	}
	return out
}

type rateResponse struct {
	Base       string    `json:"base"`
	Target     string    `json:"target"`
	Rate       string    `json:"rate"`
	Source     string    `json:"source"`
	CapturedAt time.Time `json:"captured_at"`
	AgeHours   float64   `json:"age_hours,omitempty"`
	Fresh      *bool     `json:"fresh,omitempty"`
}

func newRateInfoResponse(info currency.Info) rateResponse {
	fresh := info.Fresh
	return rateResponse{
		Base:       info.Base,
		Target:     info.Target,
		Rate:       info.Rate.String(),
		Source:     info.Source,
		CapturedAt: info.CapturedAt,
		AgeHours:   info.AgeHours,
		Fresh:      &fresh,
	}
}

func newRateResponse(rate domain.ExchangeRate) rateResponse {
	return rateResponse{
		Base:       rate.Base,
		Target:     rate.Target,
		Rate:       rate.Rate.String(),
		Source:     rate.Source,
		CapturedAt: rate.CapturedAt,
	}
}

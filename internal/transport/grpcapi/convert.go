package grpcapi

import (
	"time"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/service/currency"
	"github.com/vladislavdragonenkov/florist/internal/service/reconcile"
)

// Поля ответов совпадают по именам с JSON HTTP API.

func orderFields(order domain.Order) map[string]any {
	items := make([]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"product_id":       item.ProductID,
			"product_name":     item.ProductName,
			"unit_price_minor": item.UnitPriceMinor,
			"quantity":         item.Quantity,
			"line_total_minor": item.LineTotalMinor,
		})
	}
	out := map[string]any{
		"order_number":   order.Number,
		"status":         string(order.LifecycleStatus()),
		"payment_status": string(order.PaymentStatus()),
		"payment_method": string(order.PaymentMethod),
		"customer": map[string]any{
			"name":  order.Customer.Name,
			"email": order.Customer.Email,
			"phone": order.Customer.Phone,
		},
		"delivery": map[string]any{
			"address": order.Delivery.Address,
			"date":    order.Delivery.Date.Format("2006-01-02"),
			"notes":   order.Delivery.Notes,
		},
		"language":           string(order.Language),
		"currency":           order.Currency,
		"subtotal_minor":     order.SubtotalMinor,
		"delivery_fee_minor": order.DeliveryFeeMinor,
		"discount_minor":     order.DiscountMinor,
		"total_minor":        order.TotalMinor,
		"items":              items,
		"created_at":         formatTime(order.CreatedAt),
	}
	if order.PaymentReference != "" {
		out["payment_intent_id"] = order.PaymentReference
	}
	if !order.PaidAt.IsZero() {
		out["paid_at"] = formatTime(order.PaidAt)
	}
	if !order.ConfirmedAt.IsZero() {
		out["confirmed_at"] = formatTime(order.ConfirmedAt)
	}
	if order.SettlementCurrency != "" && order.SettlementCurrency != order.Currency {
		out["settlement_currency"] = order.SettlementCurrency
		out["settlement_total_minor"] = order.SettlementTotalMinor
		out["exchange_rate"] = order.ExchangeRate.String()
	}
	return out
}

func manualFields(res reconcile.ManualResult) map[string]any {
	return map[string]any{
		"success": res.Success,
		"outcome": string(res.Outcome),
		"order":   orderFields(res.Order),
	}
}

func batchFields(res reconcile.BatchResult) map[string]any {
	results := make([]any, 0, len(res.Items))
	for _, item := range res.Items {
		entry := map[string]any{
			"order_number": item.OrderNumber,
			"success":      item.Result.Success,
		}
		if item.Result.Outcome != "" {
			entry["outcome"] = string(item.Result.Outcome)
		}
		if item.Err != nil {
			code, msg := classify(item.Err)
			entry["error"] = map[string]any{"code": code.String(), "message": msg}
		}
		results = append(results, entry)
	}
	return map[string]any{
		"confirmed": res.Confirmed,
		"skipped":   res.Skipped,
		"warnings":  res.Warnings,
		"failed":    res.Failed,
		"results":   results,
	}
}

func paymentStatusFields(view reconcile.PaymentStatusView) map[string]any {
	out := map[string]any{
		"order_number":   view.OrderNumber,
		"payment_status": string(view.PaymentStatus),
		"status":         string(view.Status),
		"payment_method": string(view.PaymentMethod),
		"total_minor":    view.TotalMinor,
		"currency":       view.Currency,
	}
	if !view.PaidAt.IsZero() {
		out["paid_at"] = formatTime(view.PaidAt)
	}
	return out
}

func rateFields(info currency.Info) map[string]any {
	return map[string]any{
		"base":        info.Base,
		"target":      info.Target,
		"rate":        info.Rate.String(),
		"source":      info.Source,
		"captured_at": formatTime(info.CapturedAt),
		"age_hours":   info.AgeHours,
		"fresh":       info.Fresh,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Package rates периодически обновляет курсы валют из внешнего API.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/version"
)

const defaultFetchTimeout = 10 * time.Second

// ErrRateNotFound — ответ API не содержит нужной валюты.
var ErrRateNotFound = errors.New("rate not found in provider response")

// Fetcher получает текущий курс пары.
type Fetcher interface {
	Fetch(ctx context.Context, base, target string) (decimal.Decimal, error)
}

// latestResponse покрывает оба распространённых формата: rates и conversion_rates.
type latestResponse struct {
	Result          string                 `json:"result"`
	Rates           map[string]json.Number `json:"rates"`
	ConversionRates map[string]json.Number `json:"conversion_rates"`
	ErrorType       string                 `json:"error-type"`
}

// HTTPFetcher запрашивает <baseURL>/latest/<BASE>.
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher создаёт клиент провайдера курсов.
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent())
	return &HTTPFetcher{client: client}
}

// Fetch возвращает курс 1 base = N target.
func (f *HTTPFetcher) Fetch(ctx context.Context, base, target string) (decimal.Decimal, error) {
	base = domain.NormalizeCurrency(base)
	target = domain.NormalizeCurrency(target)

	var body latestResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetPathParam("base", base).
		SetResult(&body).
		Get("/latest/{base}")
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("fetch rates for %s: %w", base, err)
	}
	if resp.IsError() {
		return decimal.Decimal{}, fmt.Errorf("fetch rates for %s: unexpected status %d", base, resp.StatusCode())
	}
	if body.Result != "" && body.Result != "success" {
		return decimal.Decimal{}, fmt.Errorf("fetch rates for %s: provider error %q", base, body.ErrorType)
	}

	raw, ok := body.Rates[target]
	if !ok {
		raw, ok = body.ConversionRates[target]
	}
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s/%s", ErrRateNotFound, base, target)
	}

	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse rate %s/%s: %w", base, target, err)
	}
	return rate, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)

package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/storage/memory"
)

func TestExchangeRateRepository_LatestAndHistory(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewExchangeRateRepository()

	if _, err := repo.Latest(ctx, "USD", "HKD"); !errors.Is(err, domain.ErrCurrencyUnavailable) {
		t.Fatalf("expected ErrCurrencyUnavailable, got %v", err)
	}

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i, rate := range []string{"7.80", "7.81", "7.79"} {
		if _, err := repo.Append(ctx, domain.ExchangeRate{
			Base:       "usd",
			Target:     "hkd",
			Rate:       decimal.RequireFromString(rate),
			CapturedAt: base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	latest, err := repo.Latest(ctx, "USD", "HKD")
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if !latest.Rate.Equal(decimal.RequireFromString("7.79")) {
		t.Fatalf("expected newest rate 7.79, got %s", latest.Rate)
	}

	history, err := repo.History(ctx, "USD", "HKD", 2)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 2 || !history[1].Rate.Equal(decimal.RequireFromString("7.81")) {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestExchangeRateRepository_PruneKeepsLatest(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewExchangeRateRepository()
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _ = repo.Append(ctx, domain.ExchangeRate{Base: "USD", Target: "HKD", Rate: decimal.RequireFromString("7.80"), CapturedAt: old})
	_, _ = repo.Append(ctx, domain.ExchangeRate{Base: "USD", Target: "HKD", Rate: decimal.RequireFromString("7.82"), CapturedAt: old.Add(time.Hour)})
	_, _ = repo.Append(ctx, domain.ExchangeRate{Base: "USD", Target: "CNY", Rate: decimal.RequireFromString("7.10"), CapturedAt: old})

	removed, err := repo.PruneBefore(ctx, old.AddDate(0, 6, 0))
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed record, got %d", removed)
	}

	latest, err := repo.Latest(ctx, "USD", "HKD")
	if err != nil || !latest.Rate.Equal(decimal.RequireFromString("7.82")) {
		t.Fatalf("latest USD/HKD must survive pruning: %v %v", latest.Rate, err)
	}
	if _, err := repo.Latest(ctx, "USD", "CNY"); err != nil {
		t.Fatalf("single USD/CNY record must survive pruning: %v", err)
	}
}

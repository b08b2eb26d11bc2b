package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/service/currency"
	"github.com/vladislavdragonenkov/florist/internal/storage/memory"
)

type stubFetcher struct {
	rate decimal.Decimal
	err  error
}

func (f stubFetcher) Fetch(context.Context, string, string) (decimal.Decimal, error) {
	return f.rate, f.err
}

func newStore() *currency.Store {
	return currency.NewStore(memory.NewExchangeRateRepository(), log.WithField("test", "exchange-rate"))
}

func baseOptions() options {
	return options{base: "USD", target: "HKD", source: "manual"}
}

func TestRun_NoAction(t *testing.T) {
	err := run(context.Background(), newStore(), stubFetcher{}, baseOptions(), &bytes.Buffer{})
	require.ErrorIs(t, err, errNoAction)
}

func TestRun_SetAndShow(t *testing.T) {
	store := newStore()
	opts := baseOptions()
	opts.set = "7.8125"
	opts.show = true

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), store, stubFetcher{}, opts, &out))

	require.Contains(t, out.String(), "recorded USD/HKD = 7.8125 (manual)")
	require.Contains(t, out.String(), "USD/HKD = 7.8125 (manual")
	require.Contains(t, out.String(), "fresh")
}

func TestRun_SetRejectsInvalidRate(t *testing.T) {
	opts := baseOptions()

	opts.set = "abc"
	require.Error(t, run(context.Background(), newStore(), stubFetcher{}, opts, &bytes.Buffer{}))

	opts.set = "-1"
	err := run(context.Background(), newStore(), stubFetcher{}, opts, &bytes.Buffer{})
	require.True(t, domain.IsValidation(err), "got %v", err)
}

func TestRun_ShowWithoutRate(t *testing.T) {
	opts := baseOptions()
	opts.show = true

	err := run(context.Background(), newStore(), stubFetcher{}, opts, &bytes.Buffer{})
	require.ErrorIs(t, err, domain.ErrCurrencyUnavailable)
}

func TestRun_Refresh(t *testing.T) {
	store := newStore()
	opts := baseOptions()
	opts.refresh = true

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), store, stubFetcher{rate: decimal.RequireFromString("7.79")}, opts, &out))
	require.Contains(t, out.String(), "refreshed USD/HKD = 7.79")

	latest, err := store.Latest(context.Background(), "USD", "HKD")
	require.NoError(t, err)
	require.Equal(t, "api", latest.Source)
}

func TestRun_RefreshOtherPairSkipsUSDRange(t *testing.T) {
	store := newStore()
	opts := baseOptions()
	opts.base = "EUR"
	opts.refresh = true

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), store, stubFetcher{rate: decimal.RequireFromString("8.95")}, opts, &out))
	require.Contains(t, out.String(), "refreshed EUR/HKD = 8.95")

	opts.base = "USD"
	err := run(context.Background(), store, stubFetcher{rate: decimal.RequireFromString("8.95")}, opts, &bytes.Buffer{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "previous rate kept")
}

func TestRun_RefreshFailureKeepsPreviousRate(t *testing.T) {
	store := newStore()
	_, err := store.Record(context.Background(), "USD", "HKD", decimal.RequireFromString("7.8"), "manual")
	require.NoError(t, err)

	opts := baseOptions()
	opts.refresh = true
	err = run(context.Background(), store, stubFetcher{err: errors.New("provider down")}, opts, &bytes.Buffer{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "previous rate kept")

	latest, err := store.Latest(context.Background(), "USD", "HKD")
	require.NoError(t, err)
	require.True(t, latest.Rate.Equal(decimal.RequireFromString("7.8")))
}

func TestRun_HistoryAndPrune(t *testing.T) {
	store := newStore()
	for _, r := range []string{"7.80", "7.81", "7.82"} {
		_, err := store.Record(context.Background(), "USD", "HKD", decimal.RequireFromString(r), "manual")
		require.NoError(t, err)
	}

	opts := baseOptions()
	opts.history = 2
	opts.prune = true

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), store, stubFetcher{}, opts, &out))

	require.Contains(t, out.String(), "pruned 0 record(s)")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4, out.String())
	require.Contains(t, lines[1], "CAPTURED AT")
	require.Contains(t, lines[2], "7.82")
}

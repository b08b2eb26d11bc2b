package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

type exchangeRateRepositoryInMemory struct {
	mu      sync.RWMutex
	lastID  int64
	records []domain.ExchangeRate
}

// NewExchangeRateRepository создаёт in-memory историю курсов.
func NewExchangeRateRepository() domain.ExchangeRateRepository {
	return &exchangeRateRepositoryInMemory{}
}

// Append добавляет запись; существующие записи не изменяются.
func (r *exchangeRateRepositoryInMemory) Append(_ context.Context, rate domain.ExchangeRate) (domain.ExchangeRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	rate.ID = r.lastID
	rate.Base = domain.NormalizeCurrency(rate.Base)
	rate.Target = domain.NormalizeCurrency(rate.Target)
	if rate.CapturedAt.IsZero() {
		rate.CapturedAt = time.Now().UTC()
	}
	r.records = append(r.records, rate)
	return rate, nil
}

// Latest возвращает самую свежую запись пары.
func (r *exchangeRateRepositoryInMemory) Latest(ctx context.Context, base, target string) (domain.ExchangeRate, error) {
	history, err := r.History(ctx, base, target, 1)
	if err != nil {
		return domain.ExchangeRate{}, err
	}
	if len(history) == 0 {
		return domain.ExchangeRate{}, domain.ErrCurrencyUnavailable
	}
	return history[0], nil
}

// History возвращает записи пары от новых к старым.
func (r *exchangeRateRepositoryInMemory) History(_ context.Context, base, target string, limit int) ([]domain.ExchangeRate, error) {
	base = domain.NormalizeCurrency(base)
	target = domain.NormalizeCurrency(target)

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ExchangeRate, 0)
	for _, rec := range r.records {
		if rec.Base == base && rec.Target == target {
			result = append(result, rec)
		}
	}
	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// PruneBefore удаляет старые записи, оставляя последнюю запись каждой пары.
func (r *exchangeRateRepositoryInMemory) PruneBefore(_ context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	latest := make(map[string]int64)
	sorted := append([]domain.ExchangeRate(nil), r.records...)
	sortNewestFirst(sorted)
	for _, rec := range sorted {
		if _, ok := latest[rec.Pair()]; !ok {
			latest[rec.Pair()] = rec.ID
		}
	}

	kept := r.records[:0]
	removed := 0
	for _, rec := range r.records {
		if rec.CapturedAt.Before(before) && latest[rec.Pair()] != rec.ID {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return removed, nil
}

func sortNewestFirst(records []domain.ExchangeRate) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CapturedAt.Equal(records[j].CapturedAt) {
			return records[i].CapturedAt.After(records[j].CapturedAt)
		}
		return records[i].ID > records[j].ID
	})
}

var _ domain.ExchangeRateRepository = (*exchangeRateRepositoryInMemory)(nil)

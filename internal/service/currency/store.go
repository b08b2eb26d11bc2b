// Package currency хранит курсы валют и пересчитывает суммы в валюту расчёта.
package currency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

const freshnessWindow = 24 * time.Hour

// Conversion — результат пересчёта суммы.
type Conversion struct {
	AmountMinor int64
	From        string
	To          string
	// Rate хранит запись курса, по которой выполнен пересчёт; пустая для одинаковых валют.
	Rate domain.ExchangeRate
}

// Identity сообщает, что пересчёт не понадобился.
func (c Conversion) Identity() bool {
	return c.From == c.To
}

// Info описывает актуальность последнего курса пары.
type Info struct {
	Base       string
	Target     string
	Rate       decimal.Decimal
	Source     string
	CapturedAt time.Time
	AgeHours   float64
	Fresh      bool
}

// Store — справочник курсов поверх append-only репозитория.
type Store struct {
	repo   domain.ExchangeRateRepository
	logger *log.Entry
	now    func() time.Time
}

// NewStore создаёт справочник курсов.
func NewStore(repo domain.ExchangeRateRepository, logger *log.Entry) *Store {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Store{
		repo:   repo,
		logger: logger.WithField("component", "currency-store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Latest возвращает последний курс пары или ErrCurrencyUnavailable.
func (s *Store) Latest(ctx context.Context, base, target string) (domain.ExchangeRate, error) {
	return s.repo.Latest(ctx, domain.NormalizeCurrency(base), domain.NormalizeCurrency(target))
}

// History возвращает последние записи пары, новые первыми.
func (s *Store) History(ctx context.Context, base, target string, limit int) ([]domain.ExchangeRate, error) {
	return s.repo.History(ctx, domain.NormalizeCurrency(base), domain.NormalizeCurrency(target), limit)
}

// Record добавляет новую запись курса. Существующие записи не меняются.
func (s *Store) Record(ctx context.Context, base, target string, rate decimal.Decimal, source string) (domain.ExchangeRate, error) {
	base = domain.NormalizeCurrency(base)
	target = domain.NormalizeCurrency(target)
	if len(base) != 3 || len(target) != 3 || base == target {
		return domain.ExchangeRate{}, domain.NewValidationError("currency", "invalid currency pair %s/%s", base, target)
	}
	if !rate.IsPositive() {
		return domain.ExchangeRate{}, domain.NewValidationError("rate", "must be greater than zero")
	}

	record, err := s.repo.Append(ctx, domain.ExchangeRate{
		Base:       base,
		Target:     target,
		Rate:       rate,
		Source:     source,
		CapturedAt: s.now(),
	})
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("append exchange rate: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"pair":   record.Pair(),
		"rate":   record.Rate.String(),
		"source": source,
	}).Info("exchange rate recorded")
	return record, nil
}

// Convert пересчитывает сумму по последнему курсу: сначала прямая пара, затем обратная.
func (s *Store) Convert(ctx context.Context, amountMinor int64, from, to string) (Conversion, error) {
	from = domain.NormalizeCurrency(from)
	to = domain.NormalizeCurrency(to)
	if from == to {
		return Conversion{AmountMinor: amountMinor, From: from, To: to}, nil
	}

	rate, err := s.repo.Latest(ctx, from, to)
	if errors.Is(err, domain.ErrCurrencyUnavailable) {
		rate, err = s.repo.Latest(ctx, to, from)
	}
	if err != nil {
		if errors.Is(err, domain.ErrCurrencyUnavailable) {
			return Conversion{}, fmt.Errorf("%w: %s/%s", domain.ErrCurrencyUnavailable, from, to)
		}
		return Conversion{}, fmt.Errorf("load exchange rate: %w", err)
	}

	converted, err := ConvertWith(amountMinor, from, to, rate)
	if err != nil {
		return Conversion{}, err
	}
	return Conversion{AmountMinor: converted, From: from, To: to, Rate: rate}, nil
}

// ConvertWith пересчитывает сумму по заданной записи курса с округлением half-up.
func ConvertWith(amountMinor int64, from, to string, rate domain.ExchangeRate) (int64, error) {
	from = domain.NormalizeCurrency(from)
	to = domain.NormalizeCurrency(to)
	if from == to {
		return amountMinor, nil
	}
	if !rate.Rate.IsPositive() {
		return 0, fmt.Errorf("%w: non-positive rate for %s", domain.ErrCurrencyUnavailable, rate.Pair())
	}

	amount := decimal.NewFromInt(amountMinor)
	var result decimal.Decimal
	switch {
	case rate.Base == from && rate.Target == to:
		result = amount.Mul(rate.Rate)
	case rate.Base == to && rate.Target == from:
		result = amount.DivRound(rate.Rate, 8)
	default:
		return 0, fmt.Errorf("%w: rate %s does not match %s/%s", domain.ErrCurrencyUnavailable, rate.Pair(), from, to)
	}
	return result.Round(0).IntPart(), nil
}

// Info возвращает последний курс пары и его возраст.
func (s *Store) Info(ctx context.Context, base, target string) (Info, error) {
	rate, err := s.Latest(ctx, base, target)
	if err != nil {
		return Info{}, err
	}

	age := s.now().Sub(rate.CapturedAt)
	return Info{
		Base:       rate.Base,
		Target:     rate.Target,
		Rate:       rate.Rate,
		Source:     rate.Source,
		CapturedAt: rate.CapturedAt,
		AgeHours:   age.Hours(),
		Fresh:      age < freshnessWindow,
	}, nil
}

// PruneBefore удаляет записи старше before, оставляя последнюю запись каждой пары.
func (s *Store) PruneBefore(ctx context.Context, before time.Time) (int, error) {
	removed, err := s.repo.PruneBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("prune exchange rates: %w", err)
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("old exchange rates pruned")
	}
	return removed, nil
}

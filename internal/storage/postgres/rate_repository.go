package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

type exchangeRateRepository struct {
	db *sql.DB
}

// NewExchangeRateRepository создаёт PostgreSQL-историю курсов (append-only).
func NewExchangeRateRepository(store *Store) domain.ExchangeRateRepository {
	return &exchangeRateRepository{db: store.DB()}
}

func (r *exchangeRateRepository) Append(ctx context.Context, rate domain.ExchangeRate) (domain.ExchangeRate, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rate.Base = domain.NormalizeCurrency(rate.Base)
	rate.Target = domain.NormalizeCurrency(rate.Target)
	if rate.CapturedAt.IsZero() {
		rate.CapturedAt = time.Now().UTC()
	}

	if err := r.db.QueryRowContext(ctx, `
		INSERT INTO exchange_rates (base_currency, target_currency, rate, source, captured_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, rate.Base, rate.Target, rate.Rate, rate.Source, rate.CapturedAt).Scan(&rate.ID); err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("append exchange rate: %w", err)
	}

	return rate, nil
}

func (r *exchangeRateRepository) Latest(ctx context.Context, base, target string) (domain.ExchangeRate, error) {
	history, err := r.History(ctx, base, target, 1)
	if err != nil {
		return domain.ExchangeRate{}, err
	}
	if len(history) == 0 {
		return domain.ExchangeRate{}, domain.ErrCurrencyUnavailable
	}
	return history[0], nil
}

func (r *exchangeRateRepository) History(ctx context.Context, base, target string, limit int) ([]domain.ExchangeRate, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT id, base_currency, target_currency, rate, source, captured_at
		FROM exchange_rates
		WHERE base_currency = $1 AND target_currency = $2
		ORDER BY captured_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $3",
			domain.NormalizeCurrency(base), domain.NormalizeCurrency(target), limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, domain.NormalizeCurrency(base), domain.NormalizeCurrency(target))
	}
	if err != nil {
		return nil, fmt.Errorf("list exchange rates: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ExchangeRate, 0)
	for rows.Next() {
		var rate domain.ExchangeRate
		if err := rows.Scan(&rate.ID, &rate.Base, &rate.Target, &rate.Rate, &rate.Source, &rate.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan exchange rate: %w", err)
		}
		rate.CapturedAt = rate.CapturedAt.UTC()
		result = append(result, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchange rates: %w", err)
	}

	return result, nil
}

// PruneBefore удаляет устаревшие записи; последняя запись каждой пары сохраняется всегда.
func (r *exchangeRateRepository) PruneBefore(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		return 0, errors.New("prune exchange rates: cutoff is required")
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM exchange_rates er
		WHERE er.captured_at < $1
		  AND er.id <> (
		    SELECT latest.id
		    FROM exchange_rates latest
		    WHERE latest.base_currency = er.base_currency
		      AND latest.target_currency = er.target_currency
		    ORDER BY latest.captured_at DESC, latest.id DESC
		    LIMIT 1
		  )
	`, before)
	if err != nil {
		return 0, fmt.Errorf("prune exchange rates: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("exchange rate rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.ExchangeRateRepository = (*exchangeRateRepository)(nil)

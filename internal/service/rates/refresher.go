package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/metrics"
	"github.com/vladislavdragonenkov/florist/internal/service/currency"
)

const (
	defaultRetention = 90 * 24 * time.Hour
	sourceAPI        = "api"
)

// ErrRateOutOfRange — полученный курс вне допустимого диапазона.
var ErrRateOutOfRange = errors.New("exchange rate out of sanity range")

// Config задаёт обновление одной пары.
type Config struct {
	Base     string
	Target   string
	Min      decimal.Decimal
	Max      decimal.Decimal
	Interval time.Duration
	// Retention определяет, сколько хранить историю; последняя запись пары не удаляется.
	Retention time.Duration
}

// DefaultConfig: USD/HKD, коридор от 7.50 до 8.50, раз в сутки, хранение 90 дней.
func DefaultConfig() Config {
	return PairConfig("USD", "HKD")
}

// PairConfig возвращает настройки по умолчанию для пары base/target.
// Коридор известен только для USD/HKD; для остальных пар проверка диапазона выключена.
func PairConfig(base, target string) Config {
	base = domain.NormalizeCurrency(base)
	target = domain.NormalizeCurrency(target)
	lo, hi := DefaultRange(base, target)
	return Config{
		Base:      base,
		Target:    target,
		Min:       lo,
		Max:       hi,
		Interval:  24 * time.Hour,
		Retention: defaultRetention,
	}
}

// DefaultRange возвращает коридор допустимого курса; нули означают отсутствие проверки.
func DefaultRange(base, target string) (decimal.Decimal, decimal.Decimal) {
	if domain.NormalizeCurrency(base) == "USD" && domain.NormalizeCurrency(target) == "HKD" {
		return decimal.RequireFromString("7.50"), decimal.RequireFromString("8.50")
	}
	return decimal.Zero, decimal.Zero
}

// Refresher получает курс и добавляет его в справочник.
// При ошибке предыдущая запись остаётся в силе; запасной курс не записывается.
type Refresher struct {
	fetcher Fetcher
	store   *currency.Store
	cfg     Config
	metrics *metrics.RatesMetrics
	logger  *log.Entry
	now     func() time.Time
}

// Option настраивает Refresher.
type Option func(*Refresher)

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.RatesMetrics) Option {
	return func(r *Refresher) { r.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRefresher создаёт Refresher.
func NewRefresher(fetcher Fetcher, store *currency.Store, cfg Config, logger *log.Entry, opts ...Option) *Refresher {
	def := DefaultConfig()
	if cfg.Base == "" || cfg.Target == "" {
		cfg.Base, cfg.Target = def.Base, def.Target
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	r := &Refresher{
		fetcher: fetcher,
		store:   store,
		cfg:     cfg,
		logger:  logger.WithField("component", "rates-refresher"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RefreshOnce получает и сохраняет курс.
func (r *Refresher) RefreshOnce(ctx context.Context) (domain.ExchangeRate, error) {
	logger := r.logger.WithField("pair", r.cfg.Base+"/"+r.cfg.Target)

	rate, err := r.fetcher.Fetch(ctx, r.cfg.Base, r.cfg.Target)
	if err != nil {
		r.metrics.RecordRefresh(metrics.ResultError, 0)
		logger.WithError(err).Warn("exchange rate fetch failed, keeping previous rate")
		return domain.ExchangeRate{}, err
	}
	if !r.inRange(rate) {
		r.metrics.RecordRefresh(metrics.ResultRejected, 0)
		logger.WithField("rate", rate.String()).Warn("exchange rate rejected by sanity check")
		return domain.ExchangeRate{}, fmt.Errorf("%w: %s not in [%s, %s]", ErrRateOutOfRange, rate, r.cfg.Min, r.cfg.Max)
	}

	record, err := r.store.Record(ctx, r.cfg.Base, r.cfg.Target, rate, sourceAPI)
	if err != nil {
		r.metrics.RecordRefresh(metrics.ResultError, 0)
		logger.WithError(err).Error("exchange rate not stored")
		return domain.ExchangeRate{}, err
	}
	value, _ := rate.Float64()
	r.metrics.RecordRefresh(metrics.ResultApplied, value)
	return record, nil
}

// PruneOnce удаляет записи старше Retention.
func (r *Refresher) PruneOnce(ctx context.Context) (int, error) {
	removed, err := r.store.PruneBefore(ctx, r.now().Add(-r.cfg.Retention))
	if err != nil {
		r.logger.WithError(err).Warn("exchange rate prune failed")
		return 0, err
	}
	r.metrics.AddPruned(removed)
	return removed, nil
}

// Run обновляет курс сразу и затем с интервалом Interval до отмены ctx.
func (r *Refresher) Run(ctx context.Context) error {
	if r.cfg.Interval <= 0 {
		r.logger.Info("exchange rate refresher is disabled")
		return nil
	}

	r.tick(ctx)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	_, _ = r.RefreshOnce(ctx)
	_, _ = r.PruneOnce(ctx)
}

func (r *Refresher) inRange(rate decimal.Decimal) bool {
	if !rate.IsPositive() {
		return false
	}
	if !r.cfg.Min.IsZero() && rate.LessThan(r.cfg.Min) {
		return false
	}
	if !r.cfg.Max.IsZero() && rate.GreaterThan(r.cfg.Max) {
		return false
	}
	return true
}

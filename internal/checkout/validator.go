// Package checkout проверяет корзину гостя и рассчитывает сумму заказа по ценам каталога.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

const (
	defaultCurrency           = "HKD"
	defaultMaxQuantityPerItem = 99
	defaultMaxCartLines       = 20
	defaultMinLeadDays        = 2
	defaultMaxLeadDays        = 90
	defaultMaxOrderTotalMinor = int64(100000_00)
	defaultTimezone           = "Asia/Hong_Kong"

	deliveryDateLayout = "2006-01-02"
)

var phonePattern = regexp.MustCompile(`^[0-9+\-() ]+$`)

// Config задаёт бизнес-ограничения оформления.
type Config struct {
	Currency           string
	MaxQuantityPerItem int32
	MaxCartLines       int
	MinLeadDays        int
	MaxLeadDays        int
	MaxOrderTotalMinor int64
	DeliveryFeeMinor   int64
	DiscountMinor      int64
	Location           *time.Location
}

// DefaultConfig возвращает ограничения магазина по умолчанию.
func DefaultConfig() Config {
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		loc = time.FixedZone("HKT", 8*60*60)
	}
	return Config{
		Currency:           defaultCurrency,
		MaxQuantityPerItem: defaultMaxQuantityPerItem,
		MaxCartLines:       defaultMaxCartLines,
		MinLeadDays:        defaultMinLeadDays,
		MaxLeadDays:        defaultMaxLeadDays,
		MaxOrderTotalMinor: defaultMaxOrderTotalMinor,
		Location:           loc,
	}
}

// Option настраивает Validator.
type Option func(*Validator)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// Validator проверяет запрос оформления. Ничего не пишет в хранилище.
type Validator struct {
	catalog  domain.ProductCatalog
	cfg      Config
	validate *validator.Validate
	now      func() time.Time
}

// New создаёт Validator. Нулевые поля cfg заменяются значениями по умолчанию.
func New(catalog domain.ProductCatalog, cfg Config, opts ...Option) *Validator {
	cfg = withDefaults(cfg)

	validate, err := newStructValidator()
	if err != nil {
		panic(fmt.Sprintf("checkout: %v", err))
	}

	v := &Validator{
		catalog:  catalog,
		cfg:      cfg,
		validate: validate,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	cfg.Currency = domain.NormalizeCurrency(cfg.Currency)
	if cfg.MaxQuantityPerItem <= 0 {
		cfg.MaxQuantityPerItem = def.MaxQuantityPerItem
	}
	if cfg.MaxCartLines <= 0 {
		cfg.MaxCartLines = def.MaxCartLines
	}
	if cfg.MinLeadDays <= 0 {
		cfg.MinLeadDays = def.MinLeadDays
	}
	if cfg.MaxLeadDays <= 0 {
		cfg.MaxLeadDays = def.MaxLeadDays
	}
	if cfg.MaxOrderTotalMinor <= 0 {
		cfg.MaxOrderTotalMinor = def.MaxOrderTotalMinor
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	return cfg
}

// Currency возвращает валюту отображения цен.
func (v *Validator) Currency() string {
	return v.cfg.Currency
}

// Quote проверяет запрос и рассчитывает сумму только по ценам каталога.
// Любая ошибка ввода возвращается как *domain.ValidationError.
func (v *Validator) Quote(ctx context.Context, req domain.CheckoutRequest) (domain.Quote, error) {
	req = normalize(req)

	if len(req.Items) == 0 {
		return domain.Quote{}, domain.NewValidationError("items", "cart is empty")
	}
	if err := v.validate.Struct(req); err != nil {
		return domain.Quote{}, translate(err)
	}
	if !req.PaymentMethod.Valid() {
		return domain.Quote{}, domain.NewValidationError("payment_method", "unsupported payment method %q", req.PaymentMethod)
	}
	if len(req.Items) > v.cfg.MaxCartLines {
		return domain.Quote{}, domain.NewValidationError("items", "cart may contain at most %d lines", v.cfg.MaxCartLines)
	}

	ids := make([]int64, 0, len(req.Items))
	seen := make(map[int64]struct{}, len(req.Items))
	for _, line := range req.Items {
		if _, dup := seen[line.ProductID]; dup {
			return domain.Quote{}, domain.NewValidationError("items", "product %d appears more than once", line.ProductID)
		}
		seen[line.ProductID] = struct{}{}
		if line.Quantity < 1 || line.Quantity > v.cfg.MaxQuantityPerItem {
			return domain.Quote{}, domain.NewValidationError("items", "quantity for product %d must be between 1 and %d",
				line.ProductID, v.cfg.MaxQuantityPerItem)
		}
		ids = append(ids, line.ProductID)
	}

	now := v.now()
	deliveryDate, err := v.deliveryDate(req.DeliveryDate, now)
	if err != nil {
		return domain.Quote{}, err
	}

	products, err := v.catalog.GetProducts(ctx, ids)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("load products: %w", err)
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	var subtotal int64
	for _, line := range req.Items {
		product, ok := products[line.ProductID]
		if !ok || !product.Active {
			return domain.Quote{}, fmt.Errorf("%w: %w", domain.ErrProductNotFound,
				domain.NewValidationError("items", "product %d is not available", line.ProductID))
		}
		if product.Currency != "" && domain.NormalizeCurrency(product.Currency) != v.cfg.Currency {
			return domain.Quote{}, domain.NewValidationError("items", "product %d is priced in %s", line.ProductID, product.Currency)
		}
		item := domain.NewOrderItem(product, line.Quantity)
		subtotal += item.LineTotalMinor
		items = append(items, item)
	}

	total := subtotal + v.cfg.DeliveryFeeMinor - v.cfg.DiscountMinor
	if total <= 0 {
		return domain.Quote{}, domain.NewValidationError("total", "order total must be positive")
	}
	if total > v.cfg.MaxOrderTotalMinor {
		return domain.Quote{}, domain.NewValidationError("total", "order total exceeds maximum of %s %s",
			formatMinor(v.cfg.MaxOrderTotalMinor), v.cfg.Currency)
	}

	return domain.Quote{
		Request: req,
		Delivery: domain.Delivery{
			Address: req.DeliveryAddress,
			Date:    deliveryDate,
			Notes:   req.DeliveryNotes,
		},
		Items:            items,
		Currency:         v.cfg.Currency,
		SubtotalMinor:    subtotal,
		DeliveryFeeMinor: v.cfg.DeliveryFeeMinor,
		DiscountMinor:    v.cfg.DiscountMinor,
		TotalMinor:       total,
		QuotedAt:         now.UTC(),
	}, nil
}

// deliveryDate разбирает дату и проверяет срок в календарных днях часового пояса магазина.
func (v *Validator) deliveryDate(raw string, now time.Time) (time.Time, error) {
	parsed, err := time.Parse(deliveryDateLayout, raw)
	if err != nil {
		return time.Time{}, domain.NewValidationError("delivery_date", "must be a date in YYYY-MM-DD format")
	}

	y, m, d := now.In(v.cfg.Location).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	days := int(parsed.Sub(today).Hours() / 24)

	if days < v.cfg.MinLeadDays {
		return time.Time{}, domain.NewValidationError("delivery_date", "must be at least %d days from today", v.cfg.MinLeadDays)
	}
	if days > v.cfg.MaxLeadDays {
		return time.Time{}, domain.NewValidationError("delivery_date", "must be within %d days from today", v.cfg.MaxLeadDays)
	}
	return parsed, nil
}

// newStructValidator регистрирует собственные правила поверх validator.New.
func newStructValidator() (*validator.Validate, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("phone", validPhone); err != nil {
		return nil, fmt.Errorf("register phone validation: %w", err)
	}
	return validate, nil
}

func validPhone(fl validator.FieldLevel) bool {
	return phonePattern.MatchString(fl.Field().String())
}

func normalize(req domain.CheckoutRequest) domain.CheckoutRequest {
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Email = strings.ToLower(strings.TrimSpace(req.Customer.Email))
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	req.DeliveryAddress = strings.TrimSpace(req.DeliveryAddress)
	req.DeliveryDate = strings.TrimSpace(req.DeliveryDate)
	req.DeliveryNotes = strings.TrimSpace(req.DeliveryNotes)
	req.PaymentMethod = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod))))
	if req.Language == "" {
		req.Language = domain.LanguageEnglish
	}
	return req
}

func translate(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.NewValidationError("", "%s", err.Error())
	}

	fe := fieldErrs[0]
	field := fieldName(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return domain.NewValidationError(field, "is required")
	case "email":
		return domain.NewValidationError(field, "must be a valid email address")
	case "phone":
		return domain.NewValidationError(field, "may contain only digits, spaces, +, - and parentheses")
	case "max":
		return domain.NewValidationError(field, "must be at most %s characters", fe.Param())
	case "min":
		return domain.NewValidationError(field, "must contain at least %s entries", fe.Param())
	case "oneof":
		return domain.NewValidationError(field, "must be one of: %s", fe.Param())
	case "gt", "gte":
		return domain.NewValidationError(field, "must be at least 1")
	default:
		return domain.NewValidationError(field, "is invalid")
	}
}

// fieldName превращает CheckoutRequest.Customer.Email в customer.email.
func fieldName(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, part := range parts {
		parts[i] = snake(part)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatMinor(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

const (
	constraintOrderNumber      = "orders_order_number_key"
	constraintPaymentReference = "orders_payment_reference_key"

	orderColumns = `
		id, order_number, customer_name, customer_email, customer_phone,
		delivery_address, delivery_date, delivery_notes, language,
		payment_method, state, payment_reference, currency,
		subtotal_minor, delivery_fee_minor, discount_minor, total_minor,
		settlement_currency, settlement_total_minor, exchange_rate,
		version, created_at, updated_at, paid_at, payment_verified_at, confirmed_at`
)

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Заказ, outbox и таймлайн пишутся в одной транзакции.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order, events []domain.OrderEvent) error {
	if err := order.CheckInvariants(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order.Version = 1
	return r.store.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`, payment_status, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)
		`,
			order.ID, order.Number, order.Customer.Name, order.Customer.Email, order.Customer.Phone,
			order.Delivery.Address, nullDate(order.Delivery.Date), order.Delivery.Notes, string(order.Language),
			string(order.PaymentMethod), string(order.State), nullString(order.PaymentReference), order.Currency,
			order.SubtotalMinor, order.DeliveryFeeMinor, order.DiscountMinor, order.TotalMinor,
			order.SettlementCurrency, order.SettlementTotalMinor, nullDecimal(order.ExchangeRate),
			order.Version, order.CreatedAt, order.UpdatedAt,
			nullTime(order.PaidAt), nullTime(order.PaymentVerifiedAt), nullTime(order.ConfirmedAt),
			string(order.PaymentStatus()), string(order.LifecycleStatus()),
		)
		if err != nil {
			return mapOrderWriteError("insert order", err)
		}

		for i, item := range order.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (
					order_id, position, product_id, product_name, unit_price_minor, quantity, line_total_minor
				) VALUES ($1,$2,$3,$4,$5,$6,$7)
			`,
				order.ID, i, item.ProductID, item.ProductName, item.UnitPriceMinor, item.Quantity, item.LineTotalMinor,
			); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		return appendOrderEvents(ctx, tx, order, events)
	})
}

func (r *orderRepository) Get(ctx context.Context, number string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.getBy(ctx, r.store.DB(), "order_number = $1", number, false)
}

func (r *orderRepository) GetByPaymentReference(ctx context.Context, reference string) (domain.Order, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.getBy(ctx, r.store.DB(), "payment_reference = $1", reference, false)
}

// Update блокирует строку заказа (SELECT ... FOR UPDATE), применяет mutate и
// сохраняет результат вместе с событиями. Без событий транзакция откатывается.
func (r *orderRepository) Update(ctx context.Context, number string, mutate domain.OrderMutation) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var result domain.Order
	err := r.store.withTx(ctx, func(tx *sql.Tx) error {
		current, err := r.getBy(ctx, tx, "order_number = $1", number, true)
		if err != nil {
			return err
		}
		result = current

		updated := current
		updated.Items = append([]domain.OrderItem(nil), current.Items...)
		events, err := mutate(&updated)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return errNothingToSave
		}

		updated.Version = current.Version + 1
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET state = $1,
			    payment_status = $2,
			    status = $3,
			    payment_reference = $4,
			    settlement_currency = $5,
			    settlement_total_minor = $6,
			    exchange_rate = $7,
			    version = $8,
			    updated_at = $9,
			    paid_at = $10,
			    payment_verified_at = $11,
			    confirmed_at = $12
			WHERE order_number = $13 AND version = $14
		`,
			string(updated.State), string(updated.PaymentStatus()), string(updated.LifecycleStatus()),
			nullString(updated.PaymentReference), updated.SettlementCurrency, updated.SettlementTotalMinor,
			nullDecimal(updated.ExchangeRate), updated.Version, updated.UpdatedAt,
			nullTime(updated.PaidAt), nullTime(updated.PaymentVerifiedAt), nullTime(updated.ConfirmedAt),
			number, current.Version,
		)
		if err != nil {
			return mapOrderWriteError("update order", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected for order update: %w", err)
		}
		if affected == 0 {
			return domain.ErrOrderVersionConflict
		}

		if err := appendOrderEvents(ctx, tx, updated, events); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if errors.Is(err, errNothingToSave) {
		return result, nil
	}
	return result, err
}

var errNothingToSave = errors.New("nothing to save")

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *orderRepository) getBy(ctx context.Context, q queryer, where string, arg any, forUpdate bool) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := loadItems(ctx, q, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func scanOrder(row *sql.Row) (domain.Order, error) {
	var (
		order        domain.Order
		language     string
		method       string
		state        string
		reference    sql.NullString
		deliveryDate sql.NullTime
		rate         decimal.NullDecimal
		paidAt       sql.NullTime
		verifiedAt   sql.NullTime
		confirmedAt  sql.NullTime
	)

	if err := row.Scan(
		&order.ID, &order.Number, &order.Customer.Name, &order.Customer.Email, &order.Customer.Phone,
		&order.Delivery.Address, &deliveryDate, &order.Delivery.Notes, &language,
		&method, &state, &reference, &order.Currency,
		&order.SubtotalMinor, &order.DeliveryFeeMinor, &order.DiscountMinor, &order.TotalMinor,
		&order.SettlementCurrency, &order.SettlementTotalMinor, &rate,
		&order.Version, &order.CreatedAt, &order.UpdatedAt, &paidAt, &verifiedAt, &confirmedAt,
	); err != nil {
		return domain.Order{}, err
	}

	parsed, ok := domain.ParseOrderState(state)
	if !ok {
		return domain.Order{}, fmt.Errorf("invalid order state %q for %s", state, order.Number)
	}
	order.State = parsed
	order.Language = domain.Language(language)
	order.PaymentMethod = domain.PaymentMethod(method)
	order.PaymentReference = reference.String
	if rate.Valid {
		order.ExchangeRate = rate.Decimal
	}
	if deliveryDate.Valid {
		order.Delivery.Date = deliveryDate.Time.UTC()
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	order.PaidAt = fromNullTime(paidAt)
	order.PaymentVerifiedAt = fromNullTime(verifiedAt)
	order.ConfirmedAt = fromNullTime(confirmedAt)
	return order, nil
}

func loadItems(ctx context.Context, q queryer, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, product_name, unit_price_minor, quantity, line_total_minor
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ProductID, &item.ProductName, &item.UnitPriceMinor, &item.Quantity, &item.LineTotalMinor,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func appendOrderEvents(ctx context.Context, tx *sql.Tx, order domain.Order, events []domain.OrderEvent) error {
	for _, event := range events {
		msg, err := domain.NewOutboxMessage(order, event)
		if err != nil {
			return err
		}
		if err := insertOutboxMessage(ctx, tx, msg); err != nil {
			return err
		}
		if err := insertTimelineEvent(ctx, tx, domain.NewTimelineEvent(order, event)); err != nil {
			return err
		}
	}
	return nil
}

func mapOrderWriteError(op string, err error) error {
	constraint, ok := uniqueViolation(err)
	if !ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch constraint {
	case constraintPaymentReference:
		return domain.ErrPaymentReferenceExists
	case constraintOrderNumber:
		return domain.ErrOrderNumberExists
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

var _ domain.OrderRepository = (*orderRepository)(nil)

package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/storage/memory"
)

func newOrder(reference string) domain.Order {
	now := time.Now().UTC()
	order := domain.Order{
		ID:               "order-" + reference,
		Number:           domain.NewOrderNumber(now),
		Customer:         domain.Customer{Name: "Mei", Email: "mei@example.com", Phone: "91234567"},
		PaymentMethod:    domain.PaymentMethodCard,
		State:            domain.OrderStatePending,
		PaymentReference: reference,
		Currency:         "HKD",
		SubtotalMinor:    25000,
		TotalMinor:       25000,
		Items: []domain.OrderItem{
			domain.NewOrderItem(domain.Product{ID: 1, Name: "Roses", PriceMinor: 10000}, 2),
			domain.NewOrderItem(domain.Product{ID: 2, Name: "Vase", PriceMinor: 5000}, 1),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return order
}

func TestOrderRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	repo := memory.NewOrderRepository(outbox, timeline)
	order := newOrder("pi_1")

	events := []domain.OrderEvent{domain.NewOrderEvent(domain.OrderEventCreated, "test", order.CreatedAt)}
	if err := repo.Create(ctx, order, events); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(ctx, order.Number)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID || stored.Version != 1 {
		t.Fatalf("unexpected stored order: %+v", stored)
	}

	byRef, err := repo.GetByPaymentReference(ctx, "pi_1")
	if err != nil {
		t.Fatalf("get by reference failed: %v", err)
	}
	if byRef.Number != order.Number {
		t.Fatalf("expected %s, got %s", order.Number, byRef.Number)
	}

	if pending := outbox.AllPending(); len(pending) != 1 || pending[0].EventType != "order.created" {
		t.Fatalf("expected one order.created outbox message, got %+v", pending)
	}
	entries, _ := timeline.List(ctx, order.Number)
	if len(entries) != 1 {
		t.Fatalf("expected one timeline entry, got %d", len(entries))
	}

	if _, err := repo.Get(ctx, "HYF-missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_CreateRejectsBrokenInvariants(t *testing.T) {
	ctx := context.Background()
	outbox := memory.NewOutboxRepository()
	repo := memory.NewOrderRepository(outbox, memory.NewTimelineRepository())

	order := newOrder("pi_broken")
	order.TotalMinor = 1
	order.Items[0].LineTotalMinor = 0

	err := repo.Create(ctx, order, []domain.OrderEvent{domain.NewOrderEvent(domain.OrderEventCreated, "test", order.CreatedAt)})
	if !errors.Is(err, domain.ErrOrderInvalid) {
		t.Fatalf("expected ErrOrderInvalid, got %v", err)
	}
	if !errors.Is(err, domain.ErrTotalMismatch) || !errors.Is(err, domain.ErrLineTotalMismatch) {
		t.Fatalf("expected every violated invariant in the error, got %v", err)
	}
	if _, err := repo.Get(ctx, order.Number); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("broken order must not be stored, got %v", err)
	}
	if pending := outbox.AllPending(); len(pending) != 0 {
		t.Fatalf("broken order must not emit events, got %d", len(pending))
	}
}

func TestOrderRepository_UniqueConstraints(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository(nil, nil)

	first := newOrder("pi_dup")
	if err := repo.Create(ctx, first, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	sameRef := newOrder("pi_dup")
	if err := repo.Create(ctx, sameRef, nil); !errors.Is(err, domain.ErrPaymentReferenceExists) {
		t.Fatalf("expected ErrPaymentReferenceExists, got %v", err)
	}

	sameNumber := newOrder("pi_other")
	sameNumber.Number = first.Number
	if err := repo.Create(ctx, sameNumber, nil); !errors.Is(err, domain.ErrOrderNumberExists) {
		t.Fatalf("expected ErrOrderNumberExists, got %v", err)
	}

	// Заказы без платёжного идентификатора (PayMe) не конфликтуют между собой.
	if err := repo.Create(ctx, newOrder(""), nil); err != nil {
		t.Fatalf("create without reference failed: %v", err)
	}
	if err := repo.Create(ctx, newOrder(""), nil); err != nil {
		t.Fatalf("second create without reference failed: %v", err)
	}
}

func TestOrderRepository_ConcurrentCreateSameReference(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository(nil, nil)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, newOrder("pi_race"), nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrPaymentReferenceExists):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || conflicts != workers-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d/%d", workers-1, succeeded, conflicts)
	}
}

func TestOrderRepository_Update(t *testing.T) {
	ctx := context.Background()
	outbox := memory.NewOutboxRepository()
	repo := memory.NewOrderRepository(outbox, memory.NewTimelineRepository())
	order := newOrder("")
	order.PaymentMethod = domain.PaymentMethodPayMe
	if err := repo.Create(ctx, order, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	paidAt := time.Date(2026, 4, 12, 10, 0, 0, 0, time.UTC)
	updated, err := repo.Update(ctx, order.Number, func(o *domain.Order) ([]domain.OrderEvent, error) {
		changed, err := o.MarkPaid("", paidAt)
		if err != nil || !changed {
			return nil, err
		}
		return []domain.OrderEvent{domain.NewOrderEvent(domain.OrderEventPaid, "admin", paidAt)}, nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.State != domain.OrderStatePaid || updated.Version != 2 {
		t.Fatalf("unexpected updated order: state=%s version=%d", updated.State, updated.Version)
	}

	// Повторное применение ничего не меняет: версия и outbox остаются прежними.
	again, err := repo.Update(ctx, order.Number, func(o *domain.Order) ([]domain.OrderEvent, error) {
		changed, err := o.MarkPaid("", paidAt.Add(time.Hour))
		if err != nil || !changed {
			return nil, err
		}
		return []domain.OrderEvent{domain.NewOrderEvent(domain.OrderEventPaid, "admin", paidAt)}, nil
	})
	if err != nil {
		t.Fatalf("second update failed: %v", err)
	}
	if again.Version != 2 || !again.PaidAt.Equal(paidAt) {
		t.Fatalf("no-op update changed order: version=%d paid_at=%v", again.Version, again.PaidAt)
	}
	if pending := outbox.AllPending(); len(pending) != 1 {
		t.Fatalf("expected 1 outbox message, got %d", len(pending))
	}

	if _, err := repo.Update(ctx, "HYF-missing", func(*domain.Order) ([]domain.OrderEvent, error) { return nil, nil }); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository(nil, nil)
	order := newOrder("pi_copy")
	if err := repo.Create(ctx, order, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, _ := repo.Get(ctx, order.Number)
	stored.Items[0].Quantity = 99

	again, _ := repo.Get(ctx, order.Number)
	if again.Items[0].Quantity != 2 {
		t.Fatalf("stored order was mutated through returned copy")
	}
}

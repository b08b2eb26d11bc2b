package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []domain.Notification
	err   error
	block bool
}

func (s *recordingSender) Send(ctx context.Context, n domain.Notification) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func paidOrder(language domain.Language) domain.Order {
	return domain.Order{
		Number:   "HYF-20260412-9F3A1C7B",
		Customer: domain.Customer{Name: "Chan Tai Man", Email: "chan@example.com"},
		Language: language,
		Items: []domain.OrderItem{
			{ProductName: "Rose bouquet", Quantity: 2, LineTotalMinor: 90000},
		},
		TotalMinor: 90000,
		Currency:   "HKD",
		PaidAt:     time.Date(2026, 4, 12, 2, 30, 0, 0, time.UTC),
	}
}

func TestOrderConfirmedBuildsBilingualSubject(t *testing.T) {
	hk := time.FixedZone("HKT", 8*60*60)
	sender := &recordingSender{}
	d := NewDispatcher(sender, WithLocation(hk))

	require.NoError(t, d.OrderConfirmed(context.Background(), paidOrder(domain.LanguageEnglish)))
	require.NoError(t, d.OrderConfirmed(context.Background(), paidOrder(domain.LanguageCantonese)))

	require.Len(t, sender.sent, 2)
	require.Equal(t, "Order Confirmation - HYF-20260412-9F3A1C7B", sender.sent[0].Subject)
	require.Equal(t, "訂單確認 - HYF-20260412-9F3A1C7B", sender.sent[1].Subject)
	require.Equal(t, "chan@example.com", sender.sent[0].Recipient)
	require.Equal(t, "2026-04-12 10:30", sender.sent[0].PaidAt)
	require.Len(t, sender.sent[0].Lines, 1)
}

func TestOrderConfirmedWrapsSenderFailure(t *testing.T) {
	d := NewDispatcher(&recordingSender{err: errors.New("smtp down")})

	err := d.OrderConfirmed(context.Background(), paidOrder(domain.LanguageEnglish))
	require.ErrorIs(t, err, domain.ErrNotificationFailed)
}

func TestOrderConfirmedRespectsTimeout(t *testing.T) {
	d := NewDispatcher(&recordingSender{block: true}, WithTimeout(20*time.Millisecond))

	started := time.Now()
	err := d.OrderConfirmed(context.Background(), paidOrder(domain.LanguageEnglish))
	require.ErrorIs(t, err, domain.ErrNotificationFailed)
	require.Less(t, time.Since(started), time.Second)
}

func TestOrderConfirmedWithoutRecipientOrSender(t *testing.T) {
	order := paidOrder(domain.LanguageEnglish)
	order.Customer.Email = ""
	require.ErrorIs(t, NewDispatcher(&recordingSender{}).OrderConfirmed(context.Background(), order), domain.ErrNotificationFailed)
	require.ErrorIs(t, NewDispatcher(nil).OrderConfirmed(context.Background(), paidOrder(domain.LanguageEnglish)), domain.ErrNotificationFailed)
}

func TestLogSender(t *testing.T) {
	require.NoError(t, NewLogSender(nil).Send(context.Background(), Build(paidOrder(domain.LanguageEnglish), nil)))
}

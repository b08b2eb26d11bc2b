// Package payment содержит встроенный платёжный шлюз для локального запуска и тестов.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

// webhookPayload — формат тела webhook встроенного шлюза.
type webhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Reference    string `json:"reference"`
		RedirectType string `json:"redirect_type,omitempty"`
		WalletType   string `json:"wallet_type,omitempty"`
	} `json:"data"`
}

// FakeGateway — конфигурируемая реализация PaymentGateway в памяти.
// Подпись webhook совместима по формату с заголовком t=<unix>,v1=<hmac>.
type FakeGateway struct {
	mu      sync.Mutex
	secret  []byte
	intents map[string]domain.Intent

	// AutoSucceed сразу переводит созданные намерения в succeeded.
	AutoSucceed bool
	CreateErr   error
	GetErr      error

	CreateCalls int
	GetCalls    int
}

// NewFakeGateway создаёт шлюз с секретом для подписи webhook.
func NewFakeGateway(webhookSecret string) *FakeGateway {
	return &FakeGateway{
		secret:  []byte(webhookSecret),
		intents: make(map[string]domain.Intent),
	}
}

// CreateIntent регистрирует намерение в состоянии pending.
func (g *FakeGateway) CreateIntent(_ context.Context, req domain.IntentRequest) (domain.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.CreateCalls++
	if g.CreateErr != nil {
		return domain.Intent{}, g.CreateErr
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	intent := domain.Intent{
		Reference:    "pi_fake_" + id[:16],
		ClientSecret: "pi_fake_" + id[:16] + "_secret_" + id[16:],
		Status:       domain.IntentStatusPending,
		AmountMinor:  req.AmountMinor,
		Currency:     domain.NormalizeCurrency(req.Currency),
		Metadata:     copyMetadata(req.Metadata),
	}
	if g.AutoSucceed {
		intent.Status = domain.IntentStatusSucceeded
		intent.CapturedMinor = req.AmountMinor
		intent.Method = detailsFor(req.Method)
	}
	g.intents[intent.Reference] = intent
	return cloneIntent(intent), nil
}

// GetIntent возвращает сохранённое намерение.
func (g *FakeGateway) GetIntent(_ context.Context, reference string) (domain.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.GetCalls++
	if g.GetErr != nil {
		return domain.Intent{}, g.GetErr
	}
	intent, ok := g.intents[reference]
	if !ok {
		return domain.Intent{}, fmt.Errorf("fake gateway: no such payment intent %q", reference)
	}
	return cloneIntent(intent), nil
}

// Put сохраняет намерение как есть.
func (g *FakeGateway) Put(intent domain.Intent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[intent.Reference] = cloneIntent(intent)
}

// Succeed отмечает намерение успешным с указанной списанной суммой.
func (g *FakeGateway) Succeed(reference string, capturedMinor int64, details domain.MethodDetails) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[reference]
	if !ok {
		return fmt.Errorf("fake gateway: no such payment intent %q", reference)
	}
	intent.Status = domain.IntentStatusSucceeded
	intent.CapturedMinor = capturedMinor
	intent.Method = details
	g.intents[reference] = intent
	return nil
}

// Fail отмечает намерение неуспешным.
func (g *FakeGateway) Fail(reference string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[reference]
	if !ok {
		return fmt.Errorf("fake gateway: no such payment intent %q", reference)
	}
	intent.Status = domain.IntentStatusFailed
	g.intents[reference] = intent
	return nil
}

// VerifyWebhook проверяет подпись и разбирает событие.
func (g *FakeGateway) VerifyWebhook(payload []byte, signatureHeader string) (domain.GatewayEvent, error) {
	if !g.validSignature(payload, signatureHeader) {
		return domain.GatewayEvent{}, domain.ErrSignatureInvalid
	}

	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return domain.GatewayEvent{}, fmt.Errorf("%w: malformed payload", domain.ErrSignatureInvalid)
	}
	if body.ID == "" {
		return domain.GatewayEvent{}, fmt.Errorf("%w: event id is missing", domain.ErrSignatureInvalid)
	}

	return domain.GatewayEvent{
		ID:               body.ID,
		Type:             body.Type,
		Kind:             domain.ClassifyGatewayEvent(body.Type),
		PaymentReference: body.Data.Reference,
		Method: domain.MethodDetails{
			RedirectType: body.Data.RedirectType,
			WalletType:   body.Data.WalletType,
		},
	}, nil
}

// Event собирает подписанное тело webhook для тестов и локальной отладки.
func (g *FakeGateway) Event(eventID, eventType, reference string, details domain.MethodDetails) ([]byte, string) {
	var body webhookPayload
	body.ID = eventID
	body.Type = eventType
	body.Data.Reference = reference
	body.Data.RedirectType = details.RedirectType
	body.Data.WalletType = details.WalletType

	payload, _ := json.Marshal(body)
	return payload, g.Sign(payload, time.Now())
}

// Sign возвращает заголовок подписи для тела.
func (g *FakeGateway) Sign(payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + g.mac(ts, payload)
}

func (g *FakeGateway) validSignature(payload []byte, header string) bool {
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			sig = value
		}
	}
	if ts == "" || sig == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(g.mac(ts, payload)))
}

func (g *FakeGateway) mac(ts string, payload []byte) string {
	h := hmac.New(sha256.New, g.secret)
	h.Write([]byte(ts))
	h.Write([]byte("."))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func detailsFor(method domain.PaymentMethod) domain.MethodDetails {
	switch {
	case method.Redirect():
		return domain.MethodDetails{RedirectType: string(method)}
	case method == domain.PaymentMethodApplePay || method == domain.PaymentMethodGooglePay:
		return domain.MethodDetails{WalletType: string(method)}
	default:
		return domain.MethodDetails{}
	}
}

func copyMetadata(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneIntent(src domain.Intent) domain.Intent {
	dst := src
	dst.Metadata = copyMetadata(src.Metadata)
	return dst
}

var _ domain.PaymentGateway = (*FakeGateway)(nil)

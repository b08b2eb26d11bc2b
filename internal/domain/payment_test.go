package domain

import "testing"

func TestDetectPaymentMethod(t *testing.T) {
	tests := []struct {
		name    string
		details MethodDetails
		want    PaymentMethod
	}{
		{name: "plain card", details: MethodDetails{}, want: PaymentMethodCard},
		{name: "apple pay wallet", details: MethodDetails{WalletType: "apple_pay"}, want: PaymentMethodApplePay},
		{name: "google pay wallet", details: MethodDetails{WalletType: "google_pay"}, want: PaymentMethodGooglePay},
		{name: "alipay redirect", details: MethodDetails{RedirectType: "alipay"}, want: PaymentMethodAlipay},
		{name: "wechat redirect", details: MethodDetails{RedirectType: "wechat_pay"}, want: PaymentMethodWeChatPay},
		{name: "redirect wins over wallet", details: MethodDetails{RedirectType: "alipay", WalletType: "apple_pay"}, want: PaymentMethodAlipay},
		{name: "unknown wallet is card", details: MethodDetails{WalletType: "samsung_pay"}, want: PaymentMethodCard},
		{name: "unknown redirect falls back to wallet", details: MethodDetails{RedirectType: "klarna", WalletType: "google_pay"}, want: PaymentMethodGooglePay},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectPaymentMethod(tc.details); got != tc.want {
				t.Fatalf("DetectPaymentMethod() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestPaymentMethodKinds(t *testing.T) {
	if !PaymentMethodPayMe.PeerTransfer() {
		t.Fatal("payme must be a peer transfer")
	}
	if PaymentMethodCard.PeerTransfer() {
		t.Fatal("card must not be a peer transfer")
	}
	if !PaymentMethodAlipay.Redirect() || !PaymentMethodWeChatPay.Redirect() {
		t.Fatal("alipay and wechat_pay are redirect methods")
	}
	if PaymentMethod("cash").Valid() {
		t.Fatal("cash must not be valid")
	}
}

func TestClassifyGatewayEvent(t *testing.T) {
	cases := map[string]GatewayEventKind{
		"payment_intent.succeeded":      GatewayEventSucceeded,
		"payment_intent.payment_failed": GatewayEventFailed,
		"charge.refunded":               GatewayEventRefunded,
		"customer.created":              GatewayEventOther,
		"":                              GatewayEventOther,
	}
	for eventType, want := range cases {
		if got := ClassifyGatewayEvent(eventType); got != want {
			t.Fatalf("ClassifyGatewayEvent(%q) = %s, want %s", eventType, got, want)
		}
	}
}

package currency

import (
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

// Settlement сопоставляет способ оплаты и валюту расчёта со шлюзом.
// Способы без записи рассчитываются в валюте отображения.
type Settlement map[domain.PaymentMethod]string

// DefaultSettlement — alipay рассчитывается в USD.
func DefaultSettlement() Settlement {
	return Settlement{domain.PaymentMethodAlipay: "USD"}
}

// For возвращает валюту расчёта для способа оплаты.
func (s Settlement) For(method domain.PaymentMethod, display string) string {
	if currency, ok := s[method]; ok && currency != "" {
		return domain.NormalizeCurrency(currency)
	}
	return domain.NormalizeCurrency(display)
}

// ParseSettlement разбирает строку вида "alipay=USD,wechat_pay=CNY".
func ParseSettlement(raw string) (Settlement, error) {
	result := Settlement{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		method, currency, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid settlement entry %q", part)
		}
		pm := domain.PaymentMethod(strings.TrimSpace(method))
		if !pm.Valid() {
			return nil, fmt.Errorf("invalid settlement method %q", method)
		}
		code := domain.NormalizeCurrency(currency)
		if len(code) != 3 {
			return nil, fmt.Errorf("invalid settlement currency %q", currency)
		}
		result[pm] = code
	}
	return result, nil
}

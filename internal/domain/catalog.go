package domain

// Product — товар каталога, как его видит оформление заказа.
type Product struct {
	ID         int64
	Name       string
	PriceMinor int64
	Currency   string
	Active     bool
}

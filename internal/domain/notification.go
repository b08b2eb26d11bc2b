package domain

// Notification — подтверждение заказа, готовое к передаче почтовому сервису.
type Notification struct {
	OrderNumber string
	Recipient   string
	Name        string
	Language    Language
	Subject     string
	Lines       []NotificationLine
	TotalMinor  int64
	Currency    string
	PaidAt      string
}

// NotificationLine — строка заказа в письме.
type NotificationLine struct {
	Name           string
	Quantity       int32
	LineTotalMinor int64
}

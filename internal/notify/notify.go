package notify

import (
	"context"
	"time"
)

// Message — готовое к отправке уведомление об изменении статуса посылки.
type Message struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Delivered   bool      `json:"delivered"`
}

// Sink — транспорт доставки уведомлений в канал тенанта.
type Sink interface {
	Send(ctx context.Context, channel string, msg Message) error
}

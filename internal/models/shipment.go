package models

import "time"

// StatusSnapshot — каноничное, не зависящее от курьера состояние посылки.
// Timestamp всегда в UTC; Delivered=true — терминальное состояние.
type StatusSnapshot struct {
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Delivered   bool      `json:"delivered"`
}

// Equal сравнивает снапшоты целиком, а не только по времени:
// курьеры иногда меняют описание без смены даты.
func (s StatusSnapshot) Equal(o StatusSnapshot) bool {
	return s.Location == o.Location &&
		s.Description == o.Description &&
		s.Timestamp.Equal(o.Timestamp) &&
		s.Delivered == o.Delivered
}

type TrackedShipment struct {
	TenantID    string
	TrackingID  string
	Courier     string
	Description string
	Snapshot    StatusSnapshot
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Watcher — кто следит за парой (courier, tracking_id) и с каким описанием.
type Watcher struct {
	TenantID    string `json:"tenant_id"`
	Description string `json:"description"`
}

type TenantConfig struct {
	TenantID      string
	NotifyChannel *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ShipmentCreateInput struct {
	TenantID    string
	TrackingID  string
	Courier     string
	Description string
	Snapshot    StatusSnapshot
}

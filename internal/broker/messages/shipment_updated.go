package messages

import (
	"time"

	"github.com/ParcelPing/ParcelPing/internal/models"
)

// ShipmentUpdated — событие "статус посылки изменился". Список watchers
// снимается в момент обнаружения: для доставленных записи удаляются
// сразу после рассылки, и резолвить получателей при потреблении поздно.
type ShipmentUpdated struct {
	Courier     string    `json:"courier"`
	TrackingID  string    `json:"tracking_id"`
	TrackingURL string    `json:"tracking_url"`
	CheckedAt   time.Time `json:"checked_at"`

	Snapshot models.StatusSnapshot `json:"snapshot"`
	Watchers []models.Watcher      `json:"watchers"`
}

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ParcelPing/ParcelPing/internal/broker/messages"
)

// ChannelResolver отдаёт канал уведомлений тенанта (nil — канал не настроен).
type ChannelResolver interface {
	Channel(ctx context.Context, tenantID string) (*string, error)
}

// Dispatcher разворачивает одно событие о смене статуса в уведомления
// для всех наблюдателей. Ошибка по одному тенанту не блокирует остальных.
type Dispatcher struct {
	resolver ChannelResolver
	sink     Sink
	log      *slog.Logger
}

func NewDispatcher(resolver ChannelResolver, sink Sink, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{resolver: resolver, sink: sink, log: log}
}

func (d *Dispatcher) Dispatch(ctx context.Context, upd messages.ShipmentUpdated) error {
	var failed int
	for _, w := range upd.Watchers {
		ch, err := d.resolver.Channel(ctx, w.TenantID)
		if err != nil {
			failed++
			d.log.Error("resolve notify channel",
				slog.String("tenant_id", w.TenantID),
				slog.String("error", err.Error()))
			continue
		}
		if ch == nil {
			// Канал не настроен: тенант осознанно не получает уведомления.
			d.log.Warn("notify channel not set, skipping",
				slog.String("tenant_id", w.TenantID),
				slog.String("tracking_id", upd.TrackingID))
			continue
		}

		msg := buildMessage(upd, w.Description)
		if err := d.sink.Send(ctx, *ch, msg); err != nil {
			failed++
			d.log.Error("send notification",
				slog.String("tenant_id", w.TenantID),
				slog.String("channel", *ch),
				slog.String("error", err.Error()))
			continue
		}
	}
	if failed > 0 {
		return fmt.Errorf("dispatch: %d of %d notifications failed", failed, len(upd.Watchers))
	}
	return nil
}

// Заголовок — описание, данное самим тенантом; без описания остаётся номер.
func buildMessage(upd messages.ShipmentUpdated, description string) Message {
	title := description
	if title == "" {
		title = fmt.Sprintf("%s (%s)", strings.ToUpper(upd.Courier), upd.TrackingID)
	}
	return Message{
		Title:       title,
		URL:         upd.TrackingURL,
		Location:    upd.Snapshot.Location,
		Description: upd.Snapshot.Description,
		Date:        upd.Snapshot.Timestamp,
		Delivered:   upd.Snapshot.Delivered,
	}
}

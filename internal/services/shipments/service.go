package shipments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/ParcelPing/ParcelPing/internal/broker/messages"
	"github.com/ParcelPing/ParcelPing/internal/courier"
	"github.com/ParcelPing/ParcelPing/internal/models"
)

var (
	// ErrUnknownCourier — имя курьера не зарегистрировано.
	ErrUnknownCourier = errors.New("unknown courier")
	// ErrNoUpdatesChannel — тенант не настроил канал уведомлений;
	// без него слежение бессмысленно, добавление отклоняется.
	ErrNoUpdatesChannel = errors.New("updates channel is not set")
	// ErrAlreadyDelivered — посылка уже доставлена, следить не за чем.
	ErrAlreadyDelivered = errors.New("shipment already delivered")
)

type Repository interface {
	CreateShipment(ctx context.Context, in models.ShipmentCreateInput) error
	DeleteShipment(ctx context.Context, tenantID, trackingID string) error
	UpdateDescription(ctx context.Context, tenantID, trackingID, description string) error
	ListShipments(ctx context.Context, tenantID string) ([]*models.TrackedShipment, error)
	UpdateSnapshot(ctx context.Context, courier, trackingID string, snap models.StatusSnapshot) error
	DeleteByTracking(ctx context.Context, courier, trackingID string) error

	UpsertTenant(ctx context.Context, tenantID string) error
	DeleteTenant(ctx context.Context, tenantID string) error
	SetChannel(ctx context.Context, tenantID, channel string) error
	Channel(ctx context.Context, tenantID string) (*string, error)
}

// BytesCache — best-effort кэш для разовых проверок статуса.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Service struct {
	repo      Repository
	registry  *courier.Registry
	cache     BytesCache
	statusTTL time.Duration
}

func New(repo Repository, registry *courier.Registry, c BytesCache, statusTTL time.Duration) *Service {
	return &Service{repo: repo, registry: registry, cache: c, statusTTL: statusTTL}
}

// Add ставит посылку на слежение. Требует настроенный канал уведомлений
// и отклоняет уже доставленные посылки.
func (s *Service) Add(ctx context.Context, tenantID, courierName, trackingID, description string) error {
	if tenantID == "" {
		return errors.New("tenantId is required")
	}
	if trackingID == "" {
		return errors.New("trackingId is required")
	}
	client, ok := s.registry.Get(courierName)
	if !ok {
		return ErrUnknownCourier
	}

	ch, err := s.repo.Channel(ctx, tenantID)
	if err != nil {
		return errors.Wrap(err, "load notify channel")
	}
	if ch == nil {
		return ErrNoUpdatesChannel
	}

	// Начальный снапшот берём сразу, чтобы первое изменение статуса не
	// потерялось между добавлением и первым циклом опроса. Неизвестный
	// источнику номер не ставим на слежение, а вот сбой источника добавлению
	// не мешает: номер может быть валидным, снапшот останется пустым до
	// первого опроса.
	var snap models.StatusSnapshot
	switch got, err := courier.FetchWithRetry(ctx, client, trackingID); {
	case err == nil:
		if got.Delivered {
			return ErrAlreadyDelivered
		}
		snap = got
	case errors.Is(err, courier.ErrNotFound):
		return err
	}

	return s.repo.CreateShipment(ctx, models.ShipmentCreateInput{
		TenantID:    tenantID,
		TrackingID:  trackingID,
		Courier:     courierName,
		Description: description,
		Snapshot:    snap,
	})
}

func (s *Service) Remove(ctx context.Context, tenantID, trackingID string) error {
	if tenantID == "" || trackingID == "" {
		return errors.New("tenantId and trackingId are required")
	}
	return s.repo.DeleteShipment(ctx, tenantID, trackingID)
}

func (s *Service) Edit(ctx context.Context, tenantID, trackingID, description string) error {
	if tenantID == "" || trackingID == "" {
		return errors.New("tenantId and trackingId are required")
	}
	return s.repo.UpdateDescription(ctx, tenantID, trackingID, description)
}

func (s *Service) List(ctx context.Context, tenantID string) ([]*models.TrackedShipment, error) {
	if tenantID == "" {
		return nil, errors.New("tenantId is required")
	}
	return s.repo.ListShipments(ctx, tenantID)
}

// TrackOnce — разовая проверка статуса без постановки на слежение.
// Ответ кэшируется, чтобы повторные запросы не били по источнику.
func (s *Service) TrackOnce(ctx context.Context, courierName, trackingID string) (models.StatusSnapshot, error) {
	client, ok := s.registry.Get(courierName)
	if !ok {
		return models.StatusSnapshot{}, ErrUnknownCourier
	}
	if trackingID == "" {
		return models.StatusSnapshot{}, errors.New("trackingId is required")
	}

	key := statusKey(courierName, trackingID)
	if s.cache != nil && s.statusTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var snap models.StatusSnapshot
			if json.Unmarshal(b, &snap) == nil {
				return snap, nil
			}
		}
	}

	snap, err := courier.FetchWithRetry(ctx, client, trackingID)
	if err != nil {
		return models.StatusSnapshot{}, err
	}

	if s.cache != nil && s.statusTTL > 0 {
		b, _ := json.Marshal(snap)
		_ = s.cache.Set(ctx, key, b, s.statusTTL)
	}
	return snap, nil
}

func (s *Service) EnsureTenant(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return errors.New("tenantId is required")
	}
	return s.repo.UpsertTenant(ctx, tenantID)
}

// RemoveTenant удаляет тенанта вместе со всеми его посылками (каскад в БД).
func (s *Service) RemoveTenant(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return errors.New("tenantId is required")
	}
	return s.repo.DeleteTenant(ctx, tenantID)
}

func (s *Service) SetChannel(ctx context.Context, tenantID, channel string) error {
	if tenantID == "" || channel == "" {
		return errors.New("tenantId and channel are required")
	}
	return s.repo.SetChannel(ctx, tenantID, channel)
}

// ApplyKafkaUpdate применяет событие воркера к хранилищу: доставленная
// посылка снимается со слежения у всех, остальные получают новый снапшот.
// Вызывается ПОСЛЕ рассылки уведомлений.
func (s *Service) ApplyKafkaUpdate(ctx context.Context, msg messages.ShipmentUpdated) error {
	if msg.Courier == "" || msg.TrackingID == "" {
		return errors.New("courier and tracking_id are required")
	}
	if msg.Snapshot.Delivered {
		return s.repo.DeleteByTracking(ctx, msg.Courier, msg.TrackingID)
	}
	return s.repo.UpdateSnapshot(ctx, msg.Courier, msg.TrackingID, msg.Snapshot)
}

func statusKey(courierName, trackingID string) string {
	return fmt.Sprintf("status:%s:%s", courierName, trackingID)
}

package pgstore

import (
	"context"
	"time"

	"github.com/ParcelPing/ParcelPing/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// UpsertTenant заводит арендатора при входе в сообщество; повторный вызов безвреден.
func (s *Storage) UpsertTenant(ctx context.Context, tenantID string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
INSERT INTO tenants (tenant_id, notify_channel, created_at, updated_at)
VALUES ($1, NULL, $2, $2)
ON CONFLICT (tenant_id) DO NOTHING
`, tenantID, now)
	return errors.Wrap(err, "upsert tenant")
}

// DeleteTenant удаляет арендатора; его посылки уходят каскадом по FK.
func (s *Storage) DeleteTenant(ctx context.Context, tenantID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM tenants WHERE tenant_id = $1`, tenantID)
	return errors.Wrap(err, "delete tenant")
}

func (s *Storage) SetChannel(ctx context.Context, tenantID, channel string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
INSERT INTO tenants (tenant_id, notify_channel, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (tenant_id) DO UPDATE SET notify_channel = $2, updated_at = $3
`, tenantID, channel, now)
	return errors.Wrap(err, "set channel")
}

// Channel возвращает nil, если канал уведомлений не настроен.
func (s *Storage) Channel(ctx context.Context, tenantID string) (*string, error) {
	var ch *string
	err := s.db.QueryRow(ctx, `
SELECT notify_channel FROM tenants WHERE tenant_id = $1
`, tenantID).Scan(&ch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "select channel")
	}
	return ch, nil
}

func (s *Storage) Tenant(ctx context.Context, tenantID string) (*models.TenantConfig, error) {
	var t models.TenantConfig
	err := s.db.QueryRow(ctx, `
SELECT tenant_id, notify_channel, created_at, updated_at FROM tenants WHERE tenant_id = $1
`, tenantID).Scan(&t.TenantID, &t.NotifyChannel, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "select tenant")
	}
	return &t, nil
}

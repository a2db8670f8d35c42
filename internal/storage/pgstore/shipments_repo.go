package pgstore

import (
	"context"
	"time"

	"github.com/ParcelPing/ParcelPing/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// CreateShipment создаёт запись слежения. Дубликат тройки
// (tenant, tracking_id, courier) отклоняется, не сливается.
func (s *Storage) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) error {
	now := time.Now().UTC()

	tag, err := s.db.Exec(ctx, `
INSERT INTO shipments (
  tenant_id, tracking_id, courier, description,
  location, status_text, status_at, delivered,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
ON CONFLICT (tenant_id, tracking_id, courier) DO NOTHING
`, in.TenantID, in.TrackingID, in.Courier, in.Description,
		in.Snapshot.Location, in.Snapshot.Description, in.Snapshot.Timestamp.UTC(), in.Snapshot.Delivered,
		now)
	if err != nil {
		return errors.Wrap(err, "insert shipment")
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyWatched
	}
	return nil
}

func (s *Storage) DeleteShipment(ctx context.Context, tenantID, trackingID string) error {
	tag, err := s.db.Exec(ctx, `
DELETE FROM shipments WHERE tenant_id = $1 AND tracking_id = $2
`, tenantID, trackingID)
	if err != nil {
		return errors.Wrap(err, "delete shipment")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotWatched
	}
	return nil
}

func (s *Storage) UpdateDescription(ctx context.Context, tenantID, trackingID, description string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE shipments SET description = $3, updated_at = now()
WHERE tenant_id = $1 AND tracking_id = $2
`, tenantID, trackingID, description)
	if err != nil {
		return errors.Wrap(err, "update description")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotWatched
	}
	return nil
}

func (s *Storage) ListShipments(ctx context.Context, tenantID string) ([]*models.TrackedShipment, error) {
	rows, err := s.db.Query(ctx, `
SELECT tenant_id, tracking_id, courier, description,
       location, status_text, status_at, delivered,
       created_at, updated_at
FROM shipments
WHERE tenant_id = $1
ORDER BY created_at ASC
`, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	var out []*models.TrackedShipment
	for rows.Next() {
		var t models.TrackedShipment
		if err := rows.Scan(
			&t.TenantID, &t.TrackingID, &t.Courier, &t.Description,
			&t.Snapshot.Location, &t.Snapshot.Description, &t.Snapshot.Timestamp, &t.Snapshot.Delivered,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		out = append(out, &t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// DistinctTrackingIDs — дедуплицированный набор номеров для одного цикла опроса:
// один внешний запрос на номер, сколько бы арендаторов за ним ни следило.
func (s *Storage) DistinctTrackingIDs(ctx context.Context, courierName string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
SELECT DISTINCT tracking_id FROM shipments WHERE courier = $1 ORDER BY tracking_id
`, courierName)
	if err != nil {
		return nil, errors.Wrap(err, "select distinct ids")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan id")
		}
		out = append(out, id)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) TenantsWatching(ctx context.Context, courierName, trackingID string) ([]models.Watcher, error) {
	rows, err := s.db.Query(ctx, `
SELECT tenant_id, description FROM shipments
WHERE courier = $1 AND tracking_id = $2
ORDER BY tenant_id
`, courierName, trackingID)
	if err != nil {
		return nil, errors.Wrap(err, "select watchers")
	}
	defer rows.Close()

	var out []models.Watcher
	for rows.Next() {
		var w models.Watcher
		if err := rows.Scan(&w.TenantID, &w.Description); err != nil {
			return nil, errors.Wrap(err, "scan watcher")
		}
		out = append(out, w)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// Snapshot возвращает сохранённое состояние пары (courier, tracking_id).
// Записи всех арендаторов несут одинаковый снапшот, достаточно любой.
func (s *Storage) Snapshot(ctx context.Context, courierName, trackingID string) (models.StatusSnapshot, bool, error) {
	var snap models.StatusSnapshot
	err := s.db.QueryRow(ctx, `
SELECT location, status_text, status_at, delivered FROM shipments
WHERE courier = $1 AND tracking_id = $2
LIMIT 1
`, courierName, trackingID).Scan(&snap.Location, &snap.Description, &snap.Timestamp, &snap.Delivered)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.StatusSnapshot{}, false, nil
		}
		return models.StatusSnapshot{}, false, errors.Wrap(err, "select snapshot")
	}
	return snap, true, nil
}

// UpdateSnapshot переписывает снапшот во всех записях пары разом.
func (s *Storage) UpdateSnapshot(ctx context.Context, courierName, trackingID string, snap models.StatusSnapshot) error {
	_, err := s.db.Exec(ctx, `
UPDATE shipments
SET location = $3, status_text = $4, status_at = $5, delivered = $6, updated_at = now()
WHERE courier = $1 AND tracking_id = $2
`, courierName, trackingID, snap.Location, snap.Description, snap.Timestamp.UTC(), snap.Delivered)
	return errors.Wrap(err, "update snapshot")
}

// DeleteByTracking убирает пару у всех арендаторов (доставлено).
func (s *Storage) DeleteByTracking(ctx context.Context, courierName, trackingID string) error {
	_, err := s.db.Exec(ctx, `
DELETE FROM shipments WHERE courier = $1 AND tracking_id = $2
`, courierName, trackingID)
	return errors.Wrap(err, "delete by tracking")
}

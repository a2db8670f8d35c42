package shipments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ParcelPing/ParcelPing/internal/broker/messages"
	"github.com/ParcelPing/ParcelPing/internal/courier"
	"github.com/ParcelPing/ParcelPing/internal/models"
	"github.com/ParcelPing/ParcelPing/internal/storage/pgstore"
)

type fakeRepo struct {
	created    []models.ShipmentCreateInput
	createErr  error
	deleteErr  error
	updateErr  error
	listed     []*models.TrackedShipment
	channels   map[string]*string
	updatedAll []models.StatusSnapshot
	deletedAll []string
}

func (r *fakeRepo) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, in)
	return nil
}

func (r *fakeRepo) DeleteShipment(ctx context.Context, tenantID, trackingID string) error {
	return r.deleteErr
}

func (r *fakeRepo) UpdateDescription(ctx context.Context, tenantID, trackingID, description string) error {
	return r.updateErr
}

func (r *fakeRepo) ListShipments(ctx context.Context, tenantID string) ([]*models.TrackedShipment, error) {
	return r.listed, nil
}

func (r *fakeRepo) UpdateSnapshot(ctx context.Context, c, trackingID string, snap models.StatusSnapshot) error {
	r.updatedAll = append(r.updatedAll, snap)
	return nil
}

func (r *fakeRepo) DeleteByTracking(ctx context.Context, c, trackingID string) error {
	r.deletedAll = append(r.deletedAll, c+":"+trackingID)
	return nil
}

func (r *fakeRepo) UpsertTenant(ctx context.Context, tenantID string) error { return nil }
func (r *fakeRepo) DeleteTenant(ctx context.Context, tenantID string) error { return nil }
func (r *fakeRepo) SetChannel(ctx context.Context, tenantID, channel string) error {
	return nil
}

func (r *fakeRepo) Channel(ctx context.Context, tenantID string) (*string, error) {
	return r.channels[tenantID], nil
}

type fakeCourier struct {
	name string
	snap models.StatusSnapshot
	err  error
	hits int
}

func (c *fakeCourier) Name() string                 { return c.name }
func (c *fakeCourier) TrackingURL(id string) string { return "https://t.example/" + id }
func (c *fakeCourier) FetchStatus(ctx context.Context, id string) (models.StatusSnapshot, error) {
	c.hits++
	return c.snap, c.err
}

type memCache struct {
	data map[string][]byte
}

func (m *memCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = value
	return nil
}

func strPtr(s string) *string { return &s }

func inTransit() models.StatusSnapshot {
	return models.StatusSnapshot{
		Location:    "ΠΑΤΡΑ",
		Description: "Σε μεταφορά",
		Timestamp:   time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestService_Add_StoresInitialSnapshot(t *testing.T) {
	repo := &fakeRepo{channels: map[string]*string{"g1": strPtr("ch")}}
	c := &fakeCourier{name: "acs", snap: inTransit()}
	svc := New(repo, courier.NewRegistry(c), nil, 0)

	err := svc.Add(context.Background(), "g1", "acs", "123", "shoes")
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	require.Equal(t, "g1", repo.created[0].TenantID)
	require.Equal(t, "acs", repo.created[0].Courier)
	require.Equal(t, "shoes", repo.created[0].Description)
	require.True(t, repo.created[0].Snapshot.Equal(inTransit()))
}

func TestService_Add_RequiresChannel(t *testing.T) {
	repo := &fakeRepo{channels: map[string]*string{}}
	c := &fakeCourier{name: "acs", snap: inTransit()}
	svc := New(repo, courier.NewRegistry(c), nil, 0)

	err := svc.Add(context.Background(), "g1", "acs", "123", "")
	require.ErrorIs(t, err, ErrNoUpdatesChannel)
	require.Empty(t, repo.created)
	require.Zero(t, c.hits)
}

func TestService_Add_UnknownCourier(t *testing.T) {
	svc := New(&fakeRepo{}, courier.NewRegistry(), nil, 0)
	err := svc.Add(context.Background(), "g1", "dhl", "123", "")
	require.ErrorIs(t, err, ErrUnknownCourier)
}

func TestService_Add_AlreadyDelivered(t *testing.T) {
	repo := &fakeRepo{channels: map[string]*string{"g1": strPtr("ch")}}
	delivered := inTransit()
	delivered.Delivered = true
	c := &fakeCourier{name: "acs", snap: delivered}
	svc := New(repo, courier.NewRegistry(c), nil, 0)

	err := svc.Add(context.Background(), "g1", "acs", "123", "")
	require.ErrorIs(t, err, ErrAlreadyDelivered)
	require.Empty(t, repo.created)
}

func TestService_Add_NotFoundRejected(t *testing.T) {
	repo := &fakeRepo{channels: map[string]*string{"g1": strPtr("ch")}}
	c := &fakeCourier{name: "acs", err: courier.ErrNotFound}
	svc := New(repo, courier.NewRegistry(c), nil, 0)

	err := svc.Add(context.Background(), "g1", "acs", "NOPE404", "gift")
	require.ErrorIs(t, err, courier.ErrNotFound)
	require.Empty(t, repo.created)
}

func TestService_Add_SourceDownStillAdds(t *testing.T) {
	repo := &fakeRepo{channels: map[string]*string{"g1": strPtr("ch")}}
	c := &fakeCourier{name: "acs", err: errors.New("http 500")}
	svc := New(repo, courier.NewRegistry(c), nil, 0)

	err := svc.Add(context.Background(), "g1", "acs", "123", "")
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	require.True(t, repo.created[0].Snapshot.Equal(models.StatusSnapshot{}))
}

func TestService_Add_DuplicatePassedThrough(t *testing.T) {
	repo := &fakeRepo{
		channels:  map[string]*string{"g1": strPtr("ch")},
		createErr: pgstore.ErrAlreadyWatched,
	}
	c := &fakeCourier{name: "acs", snap: inTransit()}
	svc := New(repo, courier.NewRegistry(c), nil, 0)

	err := svc.Add(context.Background(), "g1", "acs", "123", "")
	require.ErrorIs(t, err, pgstore.ErrAlreadyWatched)
}

func TestService_RemoveEdit_NotWatchedPassedThrough(t *testing.T) {
	repo := &fakeRepo{deleteErr: pgstore.ErrNotWatched, updateErr: pgstore.ErrNotWatched}
	svc := New(repo, courier.NewRegistry(), nil, 0)

	require.ErrorIs(t, svc.Remove(context.Background(), "g1", "123"), pgstore.ErrNotWatched)
	require.ErrorIs(t, svc.Edit(context.Background(), "g1", "123", "x"), pgstore.ErrNotWatched)
}

func TestService_TrackOnce_CachesResult(t *testing.T) {
	c := &fakeCourier{name: "skroutz", snap: inTransit()}
	cache := &memCache{}
	svc := New(&fakeRepo{}, courier.NewRegistry(c), cache, time.Minute)

	snap, err := svc.TrackOnce(context.Background(), "skroutz", "JX1")
	require.NoError(t, err)
	require.True(t, snap.Equal(inTransit()))
	require.Equal(t, 1, c.hits)

	// Повторный запрос отдаётся из кэша.
	snap, err = svc.TrackOnce(context.Background(), "skroutz", "JX1")
	require.NoError(t, err)
	require.True(t, snap.Equal(inTransit()))
	require.Equal(t, 1, c.hits)
}

func TestService_TrackOnce_NotFound(t *testing.T) {
	c := &fakeCourier{name: "geniki", err: courier.ErrNotFound}
	svc := New(&fakeRepo{}, courier.NewRegistry(c), nil, 0)

	_, err := svc.TrackOnce(context.Background(), "geniki", "NOPE")
	require.ErrorIs(t, err, courier.ErrNotFound)
}

func TestService_ApplyKafkaUpdate_DeliveredDeletesEverywhere(t *testing.T) {
	repo := &fakeRepo{}
	svc := New(repo, courier.NewRegistry(), nil, 0)

	delivered := inTransit()
	delivered.Delivered = true
	err := svc.ApplyKafkaUpdate(context.Background(), messages.ShipmentUpdated{
		Courier: "acs", TrackingID: "123", Snapshot: delivered,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"acs:123"}, repo.deletedAll)
	require.Empty(t, repo.updatedAll)
}

func TestService_ApplyKafkaUpdate_InTransitUpdatesSnapshot(t *testing.T) {
	repo := &fakeRepo{}
	svc := New(repo, courier.NewRegistry(), nil, 0)

	err := svc.ApplyKafkaUpdate(context.Background(), messages.ShipmentUpdated{
		Courier: "acs", TrackingID: "123", Snapshot: inTransit(),
	})
	require.NoError(t, err)
	require.Len(t, repo.updatedAll, 1)
	require.Empty(t, repo.deletedAll)
}

func TestService_ApplyKafkaUpdate_Validates(t *testing.T) {
	svc := New(&fakeRepo{}, courier.NewRegistry(), nil, 0)
	var msg messages.ShipmentUpdated
	err := json.Unmarshal([]byte(`{}`), &msg)
	require.NoError(t, err)
	require.Error(t, svc.ApplyKafkaUpdate(context.Background(), msg))
}

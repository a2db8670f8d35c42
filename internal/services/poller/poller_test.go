package poller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ParcelPing/ParcelPing/internal/broker/messages"
	"github.com/ParcelPing/ParcelPing/internal/courier"
	"github.com/ParcelPing/ParcelPing/internal/models"
)

type fakeProducer struct {
	mu     sync.Mutex
	topic  string
	key    []byte
	values [][]byte
	err    error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topic, p.key = topic, key
	p.values = append(p.values, value)
	return nil
}

func (p *fakeProducer) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.values)
}

type fakeRL struct {
	allowed bool
	count   int64
	err     error
}

func (r fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return r.allowed, r.count, r.err
}

type fakeCourier struct {
	name string
	snap models.StatusSnapshot
	err  error
}

func (c fakeCourier) Name() string { return c.name }

func (c fakeCourier) TrackingURL(id string) string { return "https://track.example/" + id }

func (c fakeCourier) FetchStatus(ctx context.Context, id string) (models.StatusSnapshot, error) {
	return c.snap, c.err
}

type fakeRepo struct {
	mu       sync.Mutex
	ids      []string
	idsErr   error
	snap     models.StatusSnapshot
	found    bool
	watchers []models.Watcher
	listed   int
}

func (r *fakeRepo) DistinctTrackingIDs(ctx context.Context, courier string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listed++
	return r.ids, r.idsErr
}

func (r *fakeRepo) Snapshot(ctx context.Context, courier, trackingID string) (models.StatusSnapshot, bool, error) {
	return r.snap, r.found, nil
}

func (r *fakeRepo) TenantsWatching(ctx context.Context, courier, trackingID string) ([]models.Watcher, error) {
	return r.watchers, nil
}

func (r *fakeRepo) listCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listed
}

func snapAt(desc string, delivered bool) models.StatusSnapshot {
	return models.StatusSnapshot{
		Location:    "ΑΘΗΝΑ",
		Description: desc,
		Timestamp:   time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC),
		Delivered:   delivered,
	}
}

func TestPoller_processOne_changePublishesWithWatchers(t *testing.T) {
	repo := &fakeRepo{
		snap:  snapAt("Παραλαβή", false),
		found: true,
		watchers: []models.Watcher{
			{TenantID: "guild-1", Description: "shoes"},
		},
	}
	fp := &fakeProducer{}
	c := fakeCourier{name: "acs", snap: snapAt("Παράδοση", true)}
	p := New(repo, courier.NewRegistry(c), fp, fakeRL{allowed: true}, "shipment.updated")

	err := p.processOne(context.Background(), "acs", c, "1234567890", p.settingsFor("acs"))
	require.NoError(t, err)
	require.Equal(t, 1, fp.calls())
	require.Equal(t, "shipment.updated", fp.topic)
	require.Equal(t, []byte("acs:1234567890"), fp.key)

	var msg messages.ShipmentUpdated
	require.NoError(t, json.Unmarshal(fp.values[0], &msg))
	require.Equal(t, "acs", msg.Courier)
	require.Equal(t, "1234567890", msg.TrackingID)
	require.Equal(t, "https://track.example/1234567890", msg.TrackingURL)
	require.True(t, msg.Snapshot.Delivered)
	require.Len(t, msg.Watchers, 1)
	require.Equal(t, "guild-1", msg.Watchers[0].TenantID)
	require.Equal(t, int64(1), p.totalUpdates.Load())
}

func TestPoller_processOne_noChangeNoPublish(t *testing.T) {
	same := snapAt("Παραλαβή", false)
	repo := &fakeRepo{snap: same, found: true}
	fp := &fakeProducer{}
	c := fakeCourier{name: "acs", snap: same}
	p := New(repo, courier.NewRegistry(c), fp, nil, "shipment.updated")

	err := p.processOne(context.Background(), "acs", c, "1234567890", p.settingsFor("acs"))
	require.NoError(t, err)
	require.Zero(t, fp.calls())
}

func TestPoller_processOne_notFoundIsSilent(t *testing.T) {
	repo := &fakeRepo{found: true}
	fp := &fakeProducer{}
	c := fakeCourier{name: "elta", err: courier.ErrNotFound}
	p := New(repo, courier.NewRegistry(c), fp, nil, "shipment.updated")

	err := p.processOne(context.Background(), "elta", c, "XX1", p.settingsFor("elta"))
	require.NoError(t, err)
	require.Zero(t, fp.calls())
}

func TestPoller_processOne_transientErrorPropagates(t *testing.T) {
	repo := &fakeRepo{found: true}
	fp := &fakeProducer{}
	c := fakeCourier{name: "elta", err: errors.New("boom")}
	p := New(repo, courier.NewRegistry(c), fp, nil, "shipment.updated")

	err := p.processOne(context.Background(), "elta", c, "XX1", p.settingsFor("elta"))
	require.Error(t, err)
	require.Zero(t, fp.calls())
}

func TestPoller_processOne_recordDeletedMidFlight(t *testing.T) {
	repo := &fakeRepo{found: false}
	fp := &fakeProducer{}
	c := fakeCourier{name: "acs", snap: snapAt("Παράδοση", true)}
	p := New(repo, courier.NewRegistry(c), fp, nil, "shipment.updated")

	err := p.processOne(context.Background(), "acs", c, "1234567890", p.settingsFor("acs"))
	require.NoError(t, err)
	require.Zero(t, fp.calls())
}

func TestPoller_runOnce_partialFailureIsolated(t *testing.T) {
	repo := &fakeRepo{ids: []string{"A", "B", "C"}, found: true, snap: snapAt("x", false)}
	fp := &fakeProducer{}
	c := fakeCourier{name: "speedex", err: errors.New("boom")}
	p := New(repo, courier.NewRegistry(c), fp, nil, "shipment.updated")

	checked, failed := p.runOnce(context.Background(), "speedex", c, p.settingsFor("speedex"))
	require.Equal(t, 3, checked)
	require.Equal(t, 3, failed)
	require.Equal(t, int64(3), p.totalErrors.Load())
	require.Equal(t, int64(3), p.totalChecked.Load())
}

type perIDCourier struct {
	name  string
	snaps map[string]models.StatusSnapshot
	errs  map[string]error
}

func (c perIDCourier) Name() string                 { return c.name }
func (c perIDCourier) TrackingURL(id string) string { return "https://track.example/" + id }

func (c perIDCourier) FetchStatus(ctx context.Context, id string) (models.StatusSnapshot, error) {
	if err, ok := c.errs[id]; ok {
		return models.StatusSnapshot{}, err
	}
	return c.snaps[id], nil
}

// Сбой на одном номере не мешает опросить следующие и заметить их изменения.
func TestPoller_runOnce_failedIDDoesNotBlockRest(t *testing.T) {
	stored := snapAt("Παραλαβή", false)
	repo := &fakeRepo{
		ids:      []string{"A", "B", "C"},
		found:    true,
		snap:     stored,
		watchers: []models.Watcher{{TenantID: "guild-1", Description: "gift"}},
	}
	fp := &fakeProducer{}
	c := perIDCourier{
		name: "speedex",
		snaps: map[string]models.StatusSnapshot{
			"A": stored, // без изменений
			"C": snapAt("Παράδοση", true),
		},
		errs: map[string]error{"B": errors.New("boom")},
	}
	p := New(repo, courier.NewRegistry(c), fp, nil, "shipment.updated")

	checked, failed := p.runOnce(context.Background(), "speedex", c, p.settingsFor("speedex"))
	require.Equal(t, 3, checked)
	require.Equal(t, 1, failed)
	require.Equal(t, 1, fp.calls())

	var msg messages.ShipmentUpdated
	require.NoError(t, json.Unmarshal(fp.values[0], &msg))
	require.Equal(t, "C", msg.TrackingID)
	require.True(t, msg.Snapshot.Delivered)
}

func TestPoller_settingsOverrides(t *testing.T) {
	p := New(&fakeRepo{}, courier.NewRegistry(), &fakeProducer{}, nil, "t").
		WithDefaults(CourierSettings{Interval: 7 * time.Minute, Concurrency: 3, RateLimitPerMinute: 30}).
		WithCourierSettings("ikea", CourierSettings{Interval: 30 * time.Minute, Concurrency: 1})

	def := p.settingsFor("acs")
	require.Equal(t, 7*time.Minute, def.Interval)
	require.Equal(t, 3, def.Concurrency)

	ik := p.settingsFor("ikea")
	require.Equal(t, 30*time.Minute, ik.Interval)
	require.Equal(t, 1, ik.Concurrency)
	require.Equal(t, int64(30), ik.RateLimitPerMinute)
}

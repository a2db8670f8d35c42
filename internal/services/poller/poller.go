package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/ParcelPing/ParcelPing/internal/broker/messages"
	"github.com/ParcelPing/ParcelPing/internal/courier"
	"github.com/ParcelPing/ParcelPing/internal/models"
)

type Repository interface {
	DistinctTrackingIDs(ctx context.Context, courier string) ([]string, error)
	Snapshot(ctx context.Context, courier, trackingID string) (models.StatusSnapshot, bool, error)
	TenantsWatching(ctx context.Context, courier, trackingID string) ([]models.Watcher, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// CourierSettings — настройки опроса одного курьера.
type CourierSettings struct {
	Interval           time.Duration
	Concurrency        int
	RateLimitPerMinute int64
}

type Poller struct {
	repo     Repository
	registry *courier.Registry
	producer Producer
	rl       RateLimiter

	topic string

	defaults  CourierSettings
	overrides map[string]CourierSettings

	plannerCfg PlannerConfig

	triggerMu sync.Mutex
	triggers  map[string]chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalChecked        atomic.Int64
	totalUpdates        atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, registry *courier.Registry, producer Producer, rl RateLimiter, topic string) *Poller {
	return &Poller{
		repo: repo, registry: registry, producer: producer, rl: rl, topic: topic,
		defaults: CourierSettings{
			Interval:           5 * time.Minute,
			Concurrency:        4,
			RateLimitPerMinute: 60,
		},
		overrides:         map[string]CourierSettings{},
		plannerCfg:        DefaultPlannerConfig(),
		triggers:          map[string]chan struct{}{},
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (p *Poller) WithDefaults(s CourierSettings) *Poller {
	if s.Interval > 0 {
		p.defaults.Interval = s.Interval
	}
	if s.Concurrency > 0 {
		p.defaults.Concurrency = s.Concurrency
	}
	if s.RateLimitPerMinute > 0 {
		p.defaults.RateLimitPerMinute = s.RateLimitPerMinute
	}
	return p
}

func (p *Poller) WithCourierSettings(name string, s CourierSettings) *Poller {
	p.overrides[name] = s
	return p
}

func (p *Poller) WithPlanner(cfg PlannerConfig) *Poller {
	p.plannerCfg = cfg
	return p
}

func (p *Poller) settingsFor(name string) CourierSettings {
	s := p.defaults
	if o, ok := p.overrides[name]; ok {
		if o.Interval > 0 {
			s.Interval = o.Interval
		}
		if o.Concurrency > 0 {
			s.Concurrency = o.Concurrency
		}
		if o.RateLimitPerMinute > 0 {
			s.RateLimitPerMinute = o.RateLimitPerMinute
		}
	}
	return s
}

// Trigger forces an immediate poll cycle for one courier (best-effort, non-blocking).
// Пустое имя дергает все курьеры.
func (p *Poller) Trigger(name string) {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	p.triggerMu.Lock()
	defer p.triggerMu.Unlock()
	for n, ch := range p.triggers {
		if name != "" && n != name {
			continue
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalChecked  int64      `json:"totalChecked"`
	TotalUpdates  int64      `json:"totalUpdates"`
	TotalErrors   int64      `json:"totalErrors"`
	InFlight      int64      `json:"inFlight"`
	LastError     string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalChecked: p.totalChecked.Load(),
		TotalUpdates: p.totalUpdates.Load(),
		TotalErrors:  p.totalErrors.Load(),
		InFlight:     p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

// Run запускает по раннеру на каждого зарегистрированного курьера и
// блокируется до отмены контекста.
func (p *Poller) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, name := range p.registry.Names() {
		client, ok := p.registry.Get(name)
		if !ok {
			continue
		}
		trigger := make(chan struct{}, 1)
		p.triggerMu.Lock()
		p.triggers[name] = trigger
		p.triggerMu.Unlock()

		wg.Add(1)
		go func(name string, client courier.Client, trigger chan struct{}) {
			defer wg.Done()
			p.runCourier(ctx, name, client, trigger)
		}(name, client, trigger)
	}
	wg.Wait()
	return ctx.Err()
}

func (p *Poller) runCourier(ctx context.Context, name string, client courier.Client, trigger chan struct{}) {
	s := p.settingsFor(name)
	plannerCfg := p.plannerCfg
	plannerCfg.Interval = s.Interval
	planner := NewPlanner(plannerCfg, nil)

	failStreak := 0
	timer := time.NewTimer(planner.NextDelay(0))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		checked, failed := p.runOnce(ctx, name, client, s)
		// Бэкофф включаем только когда источник лежит целиком: были
		// запросы и все они провалились.
		if checked > 0 && failed == checked {
			failStreak++
		} else {
			failStreak = 0
		}
		timer.Reset(planner.NextDelay(failStreak))
	}
}

// runOnce опрашивает все отслеживаемые посылки одного курьера.
// Возвращает (сколько проверено, сколько провалилось).
func (p *Poller) runOnce(ctx context.Context, name string, client courier.Client, s CourierSettings) (int, int) {
	now := time.Now().UTC()
	p.lastCycleUnixNano.Store(now.UnixNano())

	ids, err := p.repo.DistinctTrackingIDs(ctx, name)
	if err != nil {
		slog.Error("list tracking ids", "courier", name, "error", err.Error())
		p.noteError(err)
		return 0, 0
	}

	var failedCount atomic.Int64
	sem := make(chan struct{}, s.Concurrency)
	var wg sync.WaitGroup
	for _, id := range ids {
		select {
		case <-ctx.Done():
			wg.Wait()
			return len(ids), int(failedCount.Load())
		case sem <- struct{}{}:
		}
		wg.Add(1)
		idCopy := id
		p.inFlight.Add(1)
		go func() {
			defer func() {
				p.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := p.processOne(ctx, name, client, idCopy, s); err != nil {
				failedCount.Add(1)
				p.totalErrors.Add(1)
				p.noteError(err)
				slog.Error("check shipment", "courier", name, "tracking_id", idCopy, "error", err.Error())
			}
			p.totalChecked.Add(1)
		}()
	}
	wg.Wait()
	return len(ids), int(failedCount.Load())
}

func (p *Poller) processOne(ctx context.Context, name string, client courier.Client, trackingID string, s CourierSettings) error {
	now := time.Now().UTC()

	if p.rl != nil && s.RateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:courier:%s:%s", name, now.Format("200601021504"))
		allowed, n, err := p.rl.Allow(ctx, minuteKey, s.RateLimitPerMinute, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			// Слишком много запросов в минуту: подождём немного, чтобы разгрузить источник.
			slog.Warn("rate limit exceeded", "courier", name, "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	snap, err := courier.FetchWithRetry(ctx, client, trackingID)
	if err != nil {
		if errors.Is(err, courier.ErrNotFound) {
			// Номер (ещё) неизвестен источнику: не событие и не сбой.
			slog.Warn("tracking id not found upstream", "courier", name, "tracking_id", trackingID)
			return nil
		}
		return errors.Wrapf(err, "fetch %s/%s", name, trackingID)
	}

	stored, found, err := p.repo.Snapshot(ctx, name, trackingID)
	if err != nil {
		return errors.Wrap(err, "load stored snapshot")
	}
	if !found {
		// Запись успели удалить, пока шёл запрос.
		return nil
	}
	if stored.Equal(snap) {
		return nil
	}

	watchers, err := p.repo.TenantsWatching(ctx, name, trackingID)
	if err != nil {
		return errors.Wrap(err, "resolve watchers")
	}

	msg := messages.ShipmentUpdated{
		Courier:     name,
		TrackingID:  trackingID,
		TrackingURL: client.TrackingURL(trackingID),
		CheckedAt:   now,
		Snapshot:    snap,
		Watchers:    watchers,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	key := []byte(fmt.Sprintf("%s:%s", name, trackingID))
	// Kafka может быть не готова сразу после старта docker compose.
	// Для устойчивости делаем небольшой retry.
	var pubErr error
	for i := 0; i < 10; i++ {
		if err := p.producer.Publish(ctx, p.topic, key, b); err == nil {
			pubErr = nil
			break
		} else {
			pubErr = err
			time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
		}
	}
	if pubErr != nil {
		return pubErr
	}
	p.totalUpdates.Add(1)
	return nil
}

func (p *Poller) noteError(err error) {
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}

package poller

import (
	"math/rand"
	"time"
)

type Rand interface {
	Intn(n int) int
}

type PlannerConfig struct {
	Interval time.Duration // базовый интервал опроса курьера, default: 5 minutes

	JitterFraction float64 // доля интервала, размазываемая случайно; 0 — без джиттера

	Backoff1 time.Duration // default: 5 minutes
	Backoff2 time.Duration // default: 15 minutes
	Backoff3 time.Duration // default: 30 minutes
	Backoff4 time.Duration // default: 60 minutes
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		Interval:       5 * time.Minute,
		JitterFraction: 0.1,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,
	}
}

// Planner выбирает паузу до следующего цикла опроса. При подряд идущих
// полностью неудачных циклах (источник лежит) пауза растёт ступенчато.
type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.JitterFraction < 0 || cfg.JitterFraction >= 1 {
		cfg.JitterFraction = def.JitterFraction
	}
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Backoff4 <= 0 {
		cfg.Backoff4 = def.Backoff4
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

// NextDelay возвращает паузу до следующего цикла. failStreak — число
// подряд идущих циклов, в которых не удался ни один запрос к курьеру.
func (p *Planner) NextDelay(failStreak int) time.Duration {
	if failStreak > 0 {
		return p.backoffDelay(failStreak)
	}

	base := p.cfg.Interval
	if p.cfg.JitterFraction == 0 {
		return base
	}
	jitter := time.Duration(float64(base) * p.cfg.JitterFraction)
	sec := int(jitter.Seconds())
	if sec <= 0 {
		return base
	}
	return base + time.Duration(p.r.Intn(sec+1))*time.Second
}

func (p *Planner) backoffDelay(failStreak int) time.Duration {
	switch {
	case failStreak <= 1:
		return p.cfg.Backoff1
	case failStreak == 2:
		return p.cfg.Backoff2
	case failStreak == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}

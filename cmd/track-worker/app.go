package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ParcelPing/ParcelPing/config"
	"github.com/ParcelPing/ParcelPing/internal/broker/kafka"
	"github.com/ParcelPing/ParcelPing/internal/cache/rediscache"
	"github.com/ParcelPing/ParcelPing/internal/courier"
	"github.com/ParcelPing/ParcelPing/internal/courier/courierset"
	"github.com/ParcelPing/ParcelPing/internal/services/poller"
	"github.com/ParcelPing/ParcelPing/internal/storage/pgstore"
)

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo poller.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) poller.Producer
	newRateLimiter func(cfg *config.Config) poller.RateLimiter
	newRegistry    func(cfg *config.Config) *courier.Registry
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (poller.Repository, func(), error) {
			st, err := pgstore.New(connString(cfg))
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) poller.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) poller.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newRegistry: courierset.BuildRegistry,
	}
}

func connString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

func buildPoller(cfg *config.Config, repo poller.Repository, registry *courier.Registry, producer poller.Producer, rl poller.RateLimiter) *poller.Poller {
	topic := cfg.Kafka.ShipmentUpdatedTopicName
	if topic == "" {
		topic = "shipment.updated"
	}

	defaults := poller.CourierSettings{
		Interval:           time.Duration(cfg.ParcelPing.WorkerPollIntervalSeconds) * time.Second,
		Concurrency:        cfg.ParcelPing.WorkerConcurrency,
		RateLimitPerMinute: int64(cfg.ParcelPing.WorkerRateLimitPerMinute),
	}

	p := poller.New(repo, registry, producer, rl, topic).
		WithDefaults(defaults).
		WithPlanner(poller.PlannerConfig{
			JitterFraction: cfg.ParcelPing.WorkerJitterFraction,
			Backoff1:       time.Duration(cfg.ParcelPing.WorkerBackoff1Seconds) * time.Second,
			Backoff2:       time.Duration(cfg.ParcelPing.WorkerBackoff2Seconds) * time.Second,
			Backoff3:       time.Duration(cfg.ParcelPing.WorkerBackoff3Seconds) * time.Second,
			Backoff4:       time.Duration(cfg.ParcelPing.WorkerBackoff4Seconds) * time.Second,
		})

	for name, cc := range cfg.ParcelPing.Couriers {
		p.WithCourierSettings(name, poller.CourierSettings{
			Interval:           time.Duration(cc.PollIntervalSeconds) * time.Second,
			Concurrency:        cc.Concurrency,
			RateLimitPerMinute: int64(cc.RateLimitPerMinute),
		})
	}
	return p
}

func RunTrackWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	registry := f.newRegistry(cfg)

	p := buildPoller(cfg, repo, registry, producer, rl)
	return p.Run(ctx)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ParcelPing/ParcelPing/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	f := defaultWorkerFactories()

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		panic(err)
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	registry := f.newRegistry(cfg)

	p := buildPoller(cfg, repo, registry, producer, rl)

	go func() {
		err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.ParcelPing.WorkerHTTPAddr,
			swaggerPath: os.Getenv("workerSwaggerPath"),
			poller:      p,
			registry:    registry,
			cfg:         cfg,
			onListen: func(addr string) {
				slog.Info("worker http server listening", "addr", addr)
			},
		})
		if err != nil && err != context.Canceled {
			slog.Error("worker http server stopped", "error", err.Error())
		}
	}()

	if err := p.Run(ctx); err != nil && err != context.Canceled {
		panic(err)
	}
}

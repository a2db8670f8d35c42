package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/ParcelPing/ParcelPing/internal/api/shipments_api"
	"github.com/ParcelPing/ParcelPing/internal/broker/messages"
	"github.com/ParcelPing/ParcelPing/internal/notify"
	"github.com/ParcelPing/ParcelPing/internal/services/shipments"
)

type trackAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runTrackAPI(ctx context.Context, opts trackAPIOpts, svc *shipments.Service, dispatcher *notify.Dispatcher, consumer kafkaConsumer) error {
	api := shipments_api.New(svc)

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if opts.swaggerPath != "" {
		if _, err := os.Stat(opts.swaggerPath); err == nil {
			r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
				http.ServeFile(w, r, opts.swaggerPath)
			})
			r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/swagger.json")))
		}
	}

	r.Mount("/", api.Routes())

	httpErr := make(chan error, 1)
	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()
	go func() {
		slog.Info("HTTP server listening", "addr", lis.Addr().String())
		httpErr <- srv.Serve(lis)
	}()

	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		_ = consumer.Consume(ctx, func(_key, value []byte) error {
			var m messages.ShipmentUpdated
			if err := json.Unmarshal(value, &m); err != nil {
				return err
			}
			// Сначала уведомляем, потом применяем к БД: доставленные записи
			// удаляются, и после удаления уведомлять было бы уже некого.
			if err := dispatcher.Dispatch(ctx, m); err != nil {
				slog.Error("dispatch notifications",
					"courier", m.Courier, "tracking_id", m.TrackingID, "error", err.Error())
			}
			return svc.ApplyKafkaUpdate(ctx, m)
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		if err == http.ErrServerClosed {
			return ctx.Err()
		}
		return fmt.Errorf("http server: %w", err)
	}
}

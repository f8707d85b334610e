package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	shipmentsapi "github.com/ParcelHub/ShipCore/internal/api/shipments_api"
	"github.com/ParcelHub/ShipCore/internal/broker/messages"
	"github.com/ParcelHub/ShipCore/internal/models"
	"github.com/ParcelHub/ShipCore/internal/services/ingest"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type shipAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runShipAPI(ctx context.Context, opts shipAPIOpts, api *shipmentsapi.ShipmentsAPI, ingestSvc *ingest.Service, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

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
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))
	api.Routes(r)

	httpErr := make(chan error, 1)
	srv := &http.Server{Handler: r}
	go func() {
		slog.Info("HTTP server listening", "addr", lis.Addr().String())
		httpErr <- srv.Serve(lis)
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			err := consumer.Consume(ctx, func(_key, value []byte) error {
				return handleScanEvent(ctx, ingestSvc, value)
			})
			slog.Info("kafka consumer stopped", "topic", opts.topic, "err", err)
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

// handleScanEvent feeds one scan message to ingestion. Unprocessable
// messages (bad JSON, rejected codes, already-delivered rescans) are logged
// and dropped so their offset commits; returning the error would leave the
// message uncommitted and stall the whole topic on one poison event. Only
// errors worth a redelivery (storage outages and the like) propagate.
func handleScanEvent(ctx context.Context, ingestSvc *ingest.Service, value []byte) error {
	var m messages.ShipmentScanned
	if err := json.Unmarshal(value, &m); err != nil {
		slog.Warn("dropping malformed scan event", "err", err)
		return nil
	}

	_, err := ingestSvc.Ingest(ctx, ingest.Input{
		TrackingCode:    m.TrackingCode,
		TargetStatus:    m.TargetStatus,
		ActorCredential: m.ActorCredential,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrInvalidFormat),
		errors.Is(err, models.ErrAlreadyDelivered),
		errors.Is(err, models.ErrTerminalState):
		slog.Warn("dropping unprocessable scan event", "trackingCode", m.TrackingCode, "err", err)
		return nil
	default:
		return err
	}
}
